package subhub

import (
	"fmt"
	"strings"
	"sync"

	"github.com/coregx/subhub/model"
)

// Descriptor identifies the principal behind a subscribe request. Exactly
// one resolution source is consulted, in order: a pre-resolved endpoint ID, a
// security definition ID (REST), a WebSocket channel ID, a service ID. A
// descriptor that resolves to nothing is a caller bug and surfaces as
// CONFIGURATION_ERROR, distinct from a permission denial.
type Descriptor struct {
	EndpointID int64
	SecurityID int64
	ChannelID  int64
	ServiceID  int64
}

// Registry is the per-process in-memory directory of topics, endpoints and
// subscription snapshots. It is shared state mutated either under a held
// topic lock or through its own internal locking; cross-process convergence
// happens by applying fan-out events idempotently.
type Registry struct {
	mu sync.RWMutex

	topics    map[string]model.Topic // keyed by topic name
	endpoints map[int64]model.Endpoint

	bySecurity map[int64]int64 // security ID → endpoint ID
	byChannel  map[int64]int64 // WebSocket channel ID → endpoint ID
	byService  map[int64]int64 // service ID → endpoint ID

	subsByKey   map[string]model.Snapshot
	subsByTopic map[string]map[string]struct{} // topic name → set of sub keys
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		topics:      make(map[string]model.Topic),
		endpoints:   make(map[int64]model.Endpoint),
		bySecurity:  make(map[int64]int64),
		byChannel:   make(map[int64]int64),
		byService:   make(map[int64]int64),
		subsByKey:   make(map[string]model.Snapshot),
		subsByTopic: make(map[string]map[string]struct{}),
	}
}

// AddTopic registers or replaces a topic.
func (r *Registry) AddTopic(t model.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[t.Name] = t
}

// Topic resolves a topic by name.
// Returns an error carrying ErrCodeNotFound if the topic is absent.
func (r *Registry) Topic(name string) (model.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.topics[name]
	if !ok {
		return model.Topic{}, NewError(ErrCodeNotFound, fmt.Sprintf("no such topic %q", name))
	}
	return t, nil
}

// AddEndpoint registers or replaces an endpoint and its resolution indexes.
func (r *Registry) AddEndpoint(e model.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[e.ID] = e
	if e.SecurityID.Valid {
		r.bySecurity[e.SecurityID.Int64] = e.ID
	}
	if e.ChannelID.Valid {
		r.byChannel[e.ChannelID.Int64] = e.ID
	}
	if e.ServiceID.Valid {
		r.byService[e.ServiceID.Int64] = e.ID
	}
}

// Endpoint retrieves an endpoint by ID.
func (r *Registry) Endpoint(id int64) (model.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[id]
	if !ok {
		return model.Endpoint{}, NewError(ErrCodeConfiguration, fmt.Sprintf("no endpoint with ID %d", id))
	}
	return e, nil
}

// EndpointID resolves the descriptor to an endpoint ID. Resolution must
// succeed before any permission check; an unresolvable descriptor is a
// CONFIGURATION_ERROR, never FORBIDDEN.
func (r *Registry) EndpointID(d Descriptor) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case d.EndpointID != 0:
		if _, ok := r.endpoints[d.EndpointID]; ok {
			return d.EndpointID, nil
		}
	case d.SecurityID != 0:
		if id, ok := r.bySecurity[d.SecurityID]; ok {
			return id, nil
		}
	case d.ChannelID != 0:
		if id, ok := r.byChannel[d.ChannelID]; ok {
			return id, nil
		}
	case d.ServiceID != 0:
		if id, ok := r.byService[d.ServiceID]; ok {
			return id, nil
		}
	default:
		return 0, NewError(ErrCodeConfiguration, "could not obtain endpoint ID: empty descriptor")
	}
	return 0, NewError(ErrCodeConfiguration, fmt.Sprintf("could not obtain endpoint ID from %+v", d))
}

// IsSubscribeAllowed evaluates the endpoint's subscribe ACL against the
// topic name and returns the first matching pattern. A miss returns an error
// carrying ErrCodeForbidden.
func (r *Registry) IsSubscribeAllowed(topicName string, endpointID int64) (string, error) {
	e, err := r.Endpoint(endpointID)
	if err != nil {
		return "", err
	}
	for _, pattern := range e.Patterns() {
		if MatchTopicPattern(pattern, topicName) {
			return pattern, nil
		}
	}
	return "", NewError(ErrCodeForbidden,
		fmt.Sprintf("endpoint %q may not subscribe to topic %q", e.Name, topicName))
}

// MatchTopicPattern reports whether a topic name matches an ACL pattern.
// Patterns are literal topic names with `*` wildcards, each matching any run
// of characters including dots, e.g. "orders.*" or "*.created".
func MatchTopicPattern(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(name, parts[i])
		if idx < 0 {
			return false
		}
		name = name[idx+len(parts[i]):]
	}
	return strings.HasSuffix(name, parts[len(parts)-1])
}

// AddSubscription records a subscription snapshot. Re-applying a snapshot
// with a known subscriber key replaces it in place, which makes fan-out
// event application idempotent under at-least-once delivery.
func (r *Registry) AddSubscription(s model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subsByKey[s.SubKey] = s
	set, ok := r.subsByTopic[s.TopicName]
	if !ok {
		set = make(map[string]struct{})
		r.subsByTopic[s.TopicName] = set
	}
	set[s.SubKey] = struct{}{}
}

// DeleteSubscriptions removes the given subscriber keys. Unknown keys are
// ignored, so replayed delete events are no-ops.
func (r *Registry) DeleteSubscriptions(subKeys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range subKeys {
		s, ok := r.subsByKey[key]
		if !ok {
			continue
		}
		delete(r.subsByKey, key)
		if set, ok := r.subsByTopic[s.TopicName]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(r.subsByTopic, s.TopicName)
			}
		}
	}
}

// Subscription retrieves a subscription snapshot by subscriber key.
func (r *Registry) Subscription(subKey string) (model.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subsByKey[subKey]
	return s, ok
}

// SubscriptionsByTopic returns the snapshots of all known subscriptions to
// the topic.
func (r *Registry) SubscriptionsByTopic(topicName string) []model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subsByTopic[topicName]
	if len(set) == 0 {
		return nil
	}
	out := make([]model.Snapshot, 0, len(set))
	for key := range set {
		out = append(out, r.subsByKey[key])
	}
	return out
}

// Subscriptions returns the snapshots of all subscriptions known to this
// process, in no particular order.
func (r *Registry) Subscriptions() []model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Snapshot, 0, len(r.subsByKey))
	for _, s := range r.subsByKey {
		out = append(out, s)
	}
	return out
}

// HasSubscribers reports whether any subscription to the topic is known to
// this process.
func (r *Registry) HasSubscribers(topicName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subsByTopic[topicName]) > 0
}
