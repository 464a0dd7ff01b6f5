package subhub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/subhub/model"
)

func newTestBinder() (*Binder, *memBackend, *TransientStore) {
	backend := newMemBackend()
	transient := NewTransientStore()
	return NewBinder(backend, transient, &NoopLogger{}), backend, transient
}

// enqueueClaimed stores a durable message already assigned to the subscriber.
func enqueueClaimed(t *testing.T, backend *memBackend, subKey string, msgID string) {
	t.Helper()
	m := model.NewTopicMessage(msgID, 1, true, "payload")
	m.Claim(subKey)
	require.NoError(t, backend.EnqueueDurable(context.Background(), &m))
}

func TestBinder_BindUnbind(t *testing.T) {
	binder, _, _ := newTestBinder()
	conn := newMemConn("conn-1")

	binder.Bind("sk.wsx.a", conn, false)
	assert.True(t, binder.IsBound("sk.wsx.a"))

	binder.Unbind("sk.wsx.a")
	assert.False(t, binder.IsBound("sk.wsx.a"))

	// Unbinding an unknown key is a no-op.
	binder.Unbind("sk.wsx.never-bound")
}

func TestBinder_RebindMovesKey(t *testing.T) {
	binder, _, _ := newTestBinder()

	binder.Bind("sk.wsx.a", newMemConn("conn-1"), true)
	binder.Bind("sk.wsx.a", newMemConn("conn-2"), true)

	// Closing the old connection must not touch the key anymore.
	assert.Empty(t, binder.HandleClose("conn-1"))
	assert.True(t, binder.IsBound("sk.wsx.a"))

	unsub := binder.HandleClose("conn-2")
	assert.Equal(t, []string{"sk.wsx.a"}, unsub)
	assert.False(t, binder.IsBound("sk.wsx.a"))
}

func TestBinder_HandleClose(t *testing.T) {
	binder, _, _ := newTestBinder()
	conn := newMemConn("conn-1")

	binder.Bind("sk.wsx.ephemeral", conn, true)
	binder.Bind("sk.wsx.durable", conn, false)

	unsub := binder.HandleClose("conn-1")

	// Only the unsubscribe-on-close key is reported for deletion, but both
	// keys are unbound.
	assert.Equal(t, []string{"sk.wsx.ephemeral"}, unsub)
	assert.False(t, binder.IsBound("sk.wsx.ephemeral"))
	assert.False(t, binder.IsBound("sk.wsx.durable"))

	// A second close of the same connection finds nothing.
	assert.Empty(t, binder.HandleClose("conn-1"))
}

func TestBinder_DrainUnboundKey(t *testing.T) {
	binder, _, _ := newTestBinder()

	err := binder.Drain(context.Background(), "sk.wsx.ghost")
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestBinder_DrainDurable(t *testing.T) {
	binder, backend, _ := newTestBinder()
	conn := newMemConn("conn-1")
	binder.Bind("sk.wsx.a", conn, false)

	enqueueClaimed(t, backend, "sk.wsx.a", "m1")
	enqueueClaimed(t, backend, "sk.wsx.a", "m2")
	enqueueClaimed(t, backend, "sk.wsx.a", "m3")

	require.NoError(t, binder.Drain(context.Background(), "sk.wsx.a"))

	got := conn.received()
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].MsgID)
	assert.Equal(t, "m3", got[2].MsgID)

	// Delivered messages do not come back on the next drain.
	depth, err := backend.DepthDurable(context.Background(), "sk.wsx.a")
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestBinder_DrainStopsOnSendFailure(t *testing.T) {
	binder, backend, _ := newTestBinder()
	conn := newMemConn("conn-1")
	conn.fail = NewError(ErrCodeDelivery, "socket gone")
	binder.Bind("sk.wsx.a", conn, false)

	enqueueClaimed(t, backend, "sk.wsx.a", "m1")
	enqueueClaimed(t, backend, "sk.wsx.a", "m2")

	err := binder.Drain(context.Background(), "sk.wsx.a")
	require.Error(t, err)
	assert.True(t, isCode(err, ErrCodeDelivery))

	// Undelivered durable messages stay queued for the next drain.
	depth, depthErr := backend.DepthDurable(context.Background(), "sk.wsx.a")
	require.NoError(t, depthErr)
	assert.Equal(t, 2, depth)
}

func TestBinder_DrainTransientBestEffort(t *testing.T) {
	binder, _, transient := newTestBinder()
	conn := newMemConn("conn-1")
	binder.Bind("sk.wsx.a", conn, false)

	transient.Enqueue("sk.wsx.a", model.NewTopicMessage("t1", 1, false, "x"))
	transient.Enqueue("sk.wsx.a", model.NewTopicMessage("t2", 1, false, "y"))

	require.NoError(t, binder.Drain(context.Background(), "sk.wsx.a"))

	assert.Len(t, conn.received(), 2)
	assert.Equal(t, 0, transient.Depth("sk.wsx.a"))
}

func TestBinder_DrainTransientDropsOnFailure(t *testing.T) {
	binder, _, transient := newTestBinder()
	conn := newMemConn("conn-1")
	conn.fail = NewError(ErrCodeDelivery, "socket gone")
	binder.Bind("sk.wsx.a", conn, false)

	transient.Enqueue("sk.wsx.a", model.NewTopicMessage("t1", 1, false, "x"))

	// A failed transient send is not an error; the message is simply gone.
	require.NoError(t, binder.Drain(context.Background(), "sk.wsx.a"))
	assert.Equal(t, 0, transient.Depth("sk.wsx.a"))
}
