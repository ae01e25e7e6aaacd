// Package webhook implements the asynchronous notification pipeline: a
// bounded queue, a pool of POST-delivering workers, HMAC-signed payloads,
// and operator-facing registration/validation of hook descriptors.
package webhook

import (
	"fmt"
	"sync"
)

// Event names the closed set a hook may subscribe to.
type Event string

const (
	EventReport Event = "report"
	EventAllow Event = "allow"
	EventReset Event = "reset"
	EventAddBL Event = "addbl"
	EventDelBL Event = "delbl"
	EventExpireBL Event = "expirebl"
	EventAddWL Event = "addwl"
	EventDelWL Event = "delwl"
	EventExpireWL Event = "expirewl"
)

var knownEvents = map[Event]bool{
	EventReport: true, EventAllow: true, EventReset: true,
	EventAddBL: true, EventDelBL: true, EventExpireBL: true,
	EventAddWL: true, EventDelWL: true, EventExpireWL: true,
}

// requiredKeys names the config keys every hook must carry; optionalKeys are
// merely recognized, not mandatory.
var requiredKeys = []string{"url"}
var optionalKeys = map[string]bool{
	"secret": true, "basic-auth": true, "api-key": true,
	"content-type": true, "allow_filter": true, "kafka": true,
}

// Descriptor is a registered hook: a named or anonymous ("custom" only when
// Name is set) subscription to a set of events, with delivery config.
type Descriptor struct {
	ID uint32
	Name string
	Events map[Event]bool
	Active bool
	Config map[string]string
}

// Validate checks the descriptor's config against the required-keys schema:
// url is always required, any config key this package does not recognize is
// rejected, and every subscribed event must be in the closed event set.
func (d *Descriptor) Validate() error {
	for _, k := range requiredKeys {
		if d.Config[k] == "" {
			return fmt.Errorf("webhook: missing required config key %q", k)
		}
	}
	for k := range d.Config {
		if k == "url" || optionalKeys[k] {
			continue
		}
		return fmt.Errorf("webhook: unrecognized config key %q", k)
	}
	for ev := range d.Events {
		if !knownEvents[ev] {
			return fmt.Errorf("webhook: unknown event %q", ev)
		}
	}
	return nil
}

// Registry holds the hook database. Registration and deletion update the
// lookup map in place under the lock; lookups return the descriptor by value-ish
// snapshot (the pointed-to struct is never mutated after registration, only
// replaced), avoiding any risk of a caller observing a half-updated hook.
type Registry struct {
	mu sync.RWMutex
	hooks map[uint32]*Descriptor
	next uint32
}

func NewRegistry() *Registry {
	return &Registry{hooks: make(map[uint32]*Descriptor)}
}

// Register validates and stores d, assigning an id if d.ID is zero.
func (r *Registry) Register(d *Descriptor) (uint32, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		r.next++
		d.ID = r.next
	} else if d.ID > r.next {
		r.next = d.ID
	}
	r.hooks[d.ID] = d
	return d.ID, nil
}

func (r *Registry) Delete(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, id)
}

func (r *Registry) Get(id uint32) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.hooks[id]
	return d, ok
}

// ByName finds a registered custom hook by its Name field, used by the
// /command/<name> HTTP surface.
func (r *Registry) ByName(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.hooks {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// ForEvent returns every active hook subscribed to ev, a snapshot slice safe
// to range over without holding the lock.
func (r *Registry) ForEvent(ev Event) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.hooks {
		if d.Active && d.Events[ev] {
			out = append(out, d)
		}
	}
	return out
}
