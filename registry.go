package msgq

import (
	"sort"
	"sync"
)

// registry maps a queue name to its active subscription.
//
// a slot is reserved before the backend is contacted, so concurrent first use
// of the same queue name is rejected instead of racing. Every reservation is
// counted on wg until the caller marks it done, so waiting after close covers
// subscriptions which were still being established.
type registry struct {
	mu     sync.Mutex
	closed bool
	slots  map[string]*slot
	wg     *sync.WaitGroup
}

// slot a reserved registry entry, sub is nil until Subscribe has returned.
type slot struct {
	sub Subscription
}

func newRegistry(wg *sync.WaitGroup) *registry {
	return &registry{slots: make(map[string]*slot), wg: wg}
}

// reserve inserts an empty slot for queue if absent, the caller must call
// wg.Done once the slot has been removed or its subscription has stopped.
func (r *registry) reserve(queue string) (*slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrConsumerClosed
	}
	if _, ok := r.slots[queue]; ok {
		return nil, ErrAlreadySubscribed
	}

	s := &slot{}
	r.slots[queue] = s
	r.wg.Add(1)
	return s, nil
}

// fill attaches an active subscription to a reserved slot.
// it returns false when the registry was closed in the meantime, in which case
// the slot has already been dropped and the caller owns the subscription.
func (r *registry) fill(queue string, s *slot, sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	s.sub = sub
	return true
}

// remove drops the slot for queue, only if it is still the same slot.
func (r *registry) remove(queue string, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.slots[queue]; ok && cur == s {
		delete(r.slots, queue)
	}
}

// close marks the registry closed and returns every filled subscription.
func (r *registry) close() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	subs := make([]Subscription, 0, len(r.slots))
	for q, s := range r.slots {
		if s.sub != nil {
			subs = append(subs, s.sub)
		}
		delete(r.slots, q)
	}
	return subs
}

// names returns the sorted queue names with an active or pending subscription.
func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.slots))
	for q := range r.slots {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}
