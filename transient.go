package subhub

import (
	"sync"

	"github.com/coregx/subhub/model"
)

// TransientStore holds the non-GD queue partition: per-process in-memory
// queues of best-effort messages, keyed by subscriber key. Contents are not
// persisted and not replicated; a process restart loses them by design.
//
// Safe for concurrent use.
type TransientStore struct {
	mu     sync.RWMutex
	queues map[string][]model.TopicMessage
}

// NewTransientStore creates an empty TransientStore.
func NewTransientStore() *TransientStore {
	return &TransientStore{
		queues: make(map[string][]model.TopicMessage),
	}
}

// Enqueue appends a message to the subscriber's transient queue.
func (s *TransientStore) Enqueue(subKey string, m model.TopicMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[subKey] = append(s.queues[subKey], m)
}

// Dequeue removes and returns up to max messages from the front of the
// subscriber's queue, preserving publish order.
func (s *TransientStore) Dequeue(subKey string, max int) []model.TopicMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[subKey]
	if len(q) == 0 || max <= 0 {
		return nil
	}
	if max > len(q) {
		max = len(q)
	}
	out := make([]model.TopicMessage, max)
	copy(out, q[:max])

	rest := q[max:]
	if len(rest) == 0 {
		delete(s.queues, subKey)
	} else {
		s.queues[subKey] = append(q[:0], rest...)
	}
	return out
}

// Depth returns the number of transient messages queued for the subscriber.
// Always >= 0.
func (s *TransientStore) Depth(subKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues[subKey])
}

// DeleteQueues drops the transient queues of all given subscriber keys.
func (s *TransientStore) DeleteQueues(subKeys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range subKeys {
		delete(s.queues, key)
	}
}
