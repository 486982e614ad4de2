package event

import (
	"sort"
	"sync"

	"github.com/dshills/snippetide/internal/event/topic"
)

// registry holds subscriptions. Exact topics are looked up directly;
// patterns are checked one by one, which is fine for the handful the
// application registers.
type registry struct {
	mu       sync.RWMutex
	exact    map[topic.Topic][]*subscription
	patterns []*subscription
	byID     map[string]*subscription
	seq      uint64
}

func newRegistry() *registry {
	return &registry{
		exact: make(map[topic.Topic][]*subscription),
		byID:  make(map[string]*subscription),
	}
}

func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	sub.seq = r.seq
	if sub.pattern.IsPattern() {
		r.patterns = append(r.patterns, sub)
	} else {
		r.exact[sub.pattern] = append(r.exact[sub.pattern], sub)
	}
	r.byID[sub.id] = sub
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	if sub.pattern.IsPattern() {
		r.patterns = without(r.patterns, sub)
		return true
	}
	if rest := without(r.exact[sub.pattern], sub); len(rest) > 0 {
		r.exact[sub.pattern] = rest
	} else {
		delete(r.exact, sub.pattern)
	}
	return true
}

func without(subs []*subscription, sub *subscription) []*subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// match returns the subscriptions for t ordered by priority, then by
// registration.
func (r *registry) match(t topic.Topic) []*subscription {
	r.mu.RLock()
	subs := append([]*subscription(nil), r.exact[t]...)
	for _, sub := range r.patterns {
		if t.Matches(sub.pattern) {
			subs = append(subs, sub)
		}
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	return subs
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
