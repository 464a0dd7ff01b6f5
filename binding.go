package subhub

import (
	"context"
	"sync"

	"github.com/coregx/subhub/model"
)

// Conn is a live subscriber connection as seen by the Binder. The WebSocket
// adapter implements it over gorilla; tests implement it in memory.
type Conn interface {
	// SendMessage pushes one message to the peer.
	SendMessage(ctx context.Context, m model.TopicMessage) error

	// Key returns a stable identifier for the physical connection.
	Key() string
}

// binding links one subscriber key to one live connection.
type binding struct {
	conn         Conn
	unsubOnClose bool
}

// Binder associates subscriber keys with live socket connections. Binding
// happens at subscribe time for WebSocket endpoints; unbinding happens on
// disconnect. Draining pushes the durable backlog assigned at bind time
// (and any transient messages) to the connection.
//
// Safe for concurrent use.
type Binder struct {
	mu      sync.Mutex
	byKey   map[string]binding
	byConn  map[string]map[string]struct{} // connection key → bound sub keys
	durable QueueStore
	trans   *TransientStore
	logger  Logger
}

// NewBinder creates a Binder over the given queue partitions.
func NewBinder(durable QueueStore, trans *TransientStore, logger Logger) *Binder {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Binder{
		byKey:   make(map[string]binding),
		byConn:  make(map[string]map[string]struct{}),
		durable: durable,
		trans:   trans,
		logger:  logger,
	}
}

// Bind associates the subscriber key with the connection. A key bound to an
// older connection is moved to the new one.
func (b *Binder) Bind(subKey string, conn Conn, unsubOnClose bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.byKey[subKey]; ok {
		if set := b.byConn[old.conn.Key()]; set != nil {
			delete(set, subKey)
		}
	}
	b.byKey[subKey] = binding{conn: conn, unsubOnClose: unsubOnClose}

	set, ok := b.byConn[conn.Key()]
	if !ok {
		set = make(map[string]struct{})
		b.byConn[conn.Key()] = set
	}
	set[subKey] = struct{}{}
}

// Unbind dissociates the subscriber key from its connection, if any.
func (b *Binder) Unbind(subKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bind, ok := b.byKey[subKey]
	if !ok {
		return
	}
	delete(b.byKey, subKey)
	if set := b.byConn[bind.conn.Key()]; set != nil {
		delete(set, subKey)
		if len(set) == 0 {
			delete(b.byConn, bind.conn.Key())
		}
	}
}

// HandleClose unbinds every subscriber key bound to the connection and
// returns the keys whose subscriptions were created with unsubscribe-on-close
// enabled. The caller (see Coordinator.HandleSocketClose) must delete those
// subscriptions so no orphaned rows survive a closed connection.
func (b *Binder) HandleClose(connKey string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.byConn[connKey]
	if !ok {
		return nil
	}
	delete(b.byConn, connKey)

	var unsub []string
	for subKey := range set {
		if bind, ok := b.byKey[subKey]; ok && bind.unsubOnClose {
			unsub = append(unsub, subKey)
		}
		delete(b.byKey, subKey)
	}
	return unsub
}

// IsBound reports whether the subscriber key currently has a live
// connection.
func (b *Binder) IsBound(subKey string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byKey[subKey]
	return ok
}

// Drain pushes the subscriber's backlog to its bound connection: first the
// durable partition, oldest first, then any transient messages. Messages
// that fail to send stay in their queue for the next drain.
func (b *Binder) Drain(ctx context.Context, subKey string) error {
	b.mu.Lock()
	bind, ok := b.byKey[subKey]
	b.mu.Unlock()
	if !ok {
		return NewError(ErrCodeConfiguration, "drain of unbound subscriber key "+subKey)
	}

	for {
		batch, err := b.durable.FetchDue(ctx, subKey, model.DefaultDeliveryBatchSize)
		if err != nil && !IsNoData(err) {
			return err
		}
		if len(batch) == 0 {
			break
		}
		delivered := make([]int64, 0, len(batch))
		for i := range batch {
			if err := bind.conn.SendMessage(ctx, batch[i]); err != nil {
				b.logger.Warnf("Drain of sk=%s stopped: %v", subKey, err)
				if len(delivered) > 0 {
					if markErr := b.durable.MarkDelivered(ctx, delivered); markErr != nil {
						return markErr
					}
				}
				return NewErrorWithCause(ErrCodeDelivery, "socket send failed during drain", err)
			}
			delivered = append(delivered, batch[i].ID)
		}
		if err := b.durable.MarkDelivered(ctx, delivered); err != nil {
			return err
		}
		if len(batch) < model.DefaultDeliveryBatchSize {
			break
		}
	}

	for _, m := range b.trans.Dequeue(subKey, b.trans.Depth(subKey)) {
		if err := bind.conn.SendMessage(ctx, m); err != nil {
			// Transient messages are best-effort; a failed send drops them.
			b.logger.Warnf("Dropped transient message %s for sk=%s: %v", m.MsgID, subKey, err)
		}
	}
	return nil
}
