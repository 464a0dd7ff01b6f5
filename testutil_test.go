package subhub

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/coregx/subhub/model"
)

// memBackend is an in-memory stand-in for the durable store. It implements
// SubscriptionStore and QueueStore over one message table, the same way the
// SQL adapter shares the pubsub_message table between both roles.
type memBackend struct {
	mu sync.Mutex

	nextSubID int64
	nextMsgID int64

	subs      map[string]model.Subscription // by subscriber key
	exclusive map[string]string             // exclusive key → subscriber key
	messages  []*model.TopicMessage

	failCommit       bool
	deleteQueueCalls int
}

func newMemBackend() *memBackend {
	return &memBackend{
		subs:      make(map[string]model.Subscription),
		exclusive: make(map[string]string),
	}
}

// seedPending stores n unclaimed GD messages for the topic.
func (b *memBackend) seedPending(topicID int64, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.nextMsgID++
		m := model.NewTopicMessage("seed", topicID, true, "payload")
		m.ID = b.nextMsgID
		b.messages = append(b.messages, &m)
	}
}

func (b *memBackend) Begin(_ context.Context) (SubscriptionTx, error) {
	return &memTx{backend: b}, nil
}

func (b *memBackend) HasActive(_ context.Context, topicID, endpointID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.TopicID == topicID && s.EndpointID == endpointID && s.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (b *memBackend) LoadBySubKey(_ context.Context, subKey string) (model.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[subKey]
	if !ok {
		return model.Subscription{}, ErrNoData
	}
	return s, nil
}

func (b *memBackend) ListByEndpoint(_ context.Context, endpointID int64) ([]model.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Subscription
	for _, s := range b.subs {
		if s.EndpointID == endpointID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *memBackend) DeleteBySubKeys(_ context.Context, subKeys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range subKeys {
		if s, ok := b.subs[key]; ok {
			if s.ExclusiveKey.Valid {
				delete(b.exclusive, s.ExclusiveKey.String)
			}
			delete(b.subs, key)
		}
	}
	return nil
}

func (b *memBackend) UpdateInteraction(_ context.Context, subKeys []string, interaction model.Interaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range subKeys {
		if s, ok := b.subs[key]; ok {
			s.RecordInteraction(interaction)
			b.subs[key] = s
		}
	}
	return nil
}

func (b *memBackend) EnqueueDurable(_ context.Context, m *model.TopicMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextMsgID++
	m.ID = b.nextMsgID
	copied := *m
	b.messages = append(b.messages, &copied)
	return nil
}

func (b *memBackend) DepthDurable(_ context.Context, subKey string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depthLocked(subKey), nil
}

func (b *memBackend) depthLocked(subKey string) int {
	n := 0
	for _, m := range b.messages {
		if m.SubKey.Valid && m.SubKey.String == subKey && !m.DeliveredAt.Valid {
			n++
		}
	}
	return n
}

func (b *memBackend) FetchDue(_ context.Context, subKey string, limit int) ([]model.TopicMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.TopicMessage
	for _, m := range b.messages {
		if m.SubKey.Valid && m.SubKey.String == subKey && !m.DeliveredAt.Valid {
			out = append(out, *m)
			if len(out) == limit {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (b *memBackend) MarkDelivered(_ context.Context, ids []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, m := range b.messages {
		if _, ok := want[m.ID]; ok {
			m.MarkDelivered()
		}
	}
	return nil
}

func (b *memBackend) DeleteQueues(_ context.Context, subKeys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteQueueCalls++
	want := make(map[string]struct{}, len(subKeys))
	for _, key := range subKeys {
		want[key] = struct{}{}
	}
	kept := b.messages[:0]
	for _, m := range b.messages {
		if m.SubKey.Valid {
			if _, ok := want[m.SubKey.String]; ok {
				continue
			}
		}
		kept = append(kept, m)
	}
	b.messages = kept
	return nil
}

// memTx stages the subscribe mutation and applies it at Commit, mirroring
// the atomicity the SQL adapter gets from its transaction.
type memTx struct {
	backend *memBackend

	staged    *model.Subscription
	migrated  []*model.TopicMessage
	migrateTo string
	migrateAt int64
	done      bool
}

func (t *memTx) Insert(_ context.Context, m *model.Subscription) error {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[m.SubKey]; ok {
		return NewError(ErrCodeKeyCollision, "subscriber key already exists")
	}
	if m.ExclusiveKey.Valid {
		if _, ok := b.exclusive[m.ExclusiveKey.String]; ok {
			return NewError(ErrCodeAlreadySubscribed, "endpoint already subscribed to topic")
		}
	}

	b.nextSubID++
	m.ID = b.nextSubID
	staged := *m
	t.staged = &staged
	return nil
}

func (t *memTx) MigratePending(_ context.Context, topicID int64, subKey string, now int64) (int, error) {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	t.migrateTo = subKey
	t.migrateAt = now
	for _, m := range b.messages {
		if m.TopicID == topicID && !m.SubKey.Valid {
			t.migrated = append(t.migrated, m)
		}
	}
	return len(t.migrated), nil
}

func (t *memTx) DepthDurable(_ context.Context, subKey string) (int, error) {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	depth := b.depthLocked(subKey)
	if t.migrateTo == subKey {
		depth += len(t.migrated)
	}
	return depth, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCommit {
		return NewError(ErrCodePersistence, "commit failed")
	}
	if t.staged != nil {
		b.subs[t.staged.SubKey] = *t.staged
		if t.staged.ExclusiveKey.Valid {
			b.exclusive[t.staged.ExclusiveKey.String] = t.staged.SubKey
		}
	}
	for _, m := range t.migrated {
		m.Claim(t.migrateTo)
		m.RecvTime = sql.NullInt64{Int64: t.migrateAt, Valid: true}
	}
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

// recAnnouncer records announced events.
type recAnnouncer struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (a *recAnnouncer) Announce(_ context.Context, event model.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, event)
	return nil
}

func (a *recAnnouncer) recorded() []model.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Event, len(a.events))
	copy(out, a.events)
	return out
}

// memConn is an in-memory Conn capturing sent messages.
type memConn struct {
	mu   sync.Mutex
	key  string
	sent []model.TopicMessage
	fail error
}

func newMemConn(key string) *memConn {
	return &memConn{key: key}
}

func (c *memConn) SendMessage(_ context.Context, m model.TopicMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *memConn) Key() string { return c.key }

func (c *memConn) received() []model.TopicMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.TopicMessage, len(c.sent))
	copy(out, c.sent)
	return out
}
