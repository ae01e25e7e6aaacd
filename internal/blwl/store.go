package blwl

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/loginguard/engine/internal/metrics"
)

// Op names the BL/WL mutation kinds carried over replication.
type Op string

const (
	OpNone Op = "NONE"
	OpAdd Op = "ADD"
	OpDelete Op = "DELETE"
)

// Mutation mirrors the BL/WL mutation's wire sub-message exactly.
type Mutation struct {
	Op Op
	Kind Kind
	Key string
	TTL int64
	Reason string
}

// Replicator is the collaborator the replication subsystem implements.
type Replicator interface {
	ReplicateBLWL(listName string, m Mutation)
}

// Persister is the collaborator a Redis-backed persistence layer implements.
type Persister interface {
	Set(kindName, key string, absExpiration int64, reason string, ttl time.Duration) error
	Delete(kindName, key string) error
	ScanAll(prefixKind string) (map[string]string, error) // key -> "abs_exp:reason"
}

// Hook fires webhook events on BL/WL mutations.
type Hook interface {
	Fire(event string, kind Kind, key, reason string, ttlSeconds int64)
}

// Store is one BL or WL table: three kind-partitioned indices sharing a
// single lock, plus the IP-kind netmask trie.
type Store struct {
	// listName is "bl" or "wl", used for event naming and Redis key
	// namespacing.
	listName string

	mu sync.RWMutex
	entries map[Kind]map[string]*Entry
	order map[Kind][]string // insertion order, for list()
	trie *maskTrie

	persist Persister
	persistReplicated bool

	replicator Replicator
	hook Hook
	metrics *metrics.Registry
}

// New constructs an empty store. listName must be "bl" or "wl".
func New(listName string, reg *metrics.Registry) *Store {
	return &Store{
		listName: listName,
		entries: map[Kind]map[string]*Entry{
			KindIP: {}, KindLogin: {}, KindIPLogin: {},
		},
		order: map[Kind][]string{
			KindIP: {}, KindLogin: {}, KindIPLogin: {},
		},
		trie: newMaskTrie(),
		metrics: reg,
	}
}

func (s *Store) SetReplicator(r Replicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicator = r
}

func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// MakePersistent enables Redis-backed persistence via p. Call
// LoadPersisted separately to repopulate from existing keys.
func (s *Store) MakePersistent(p Persister, persistReplicated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
	s.persistReplicated = persistReplicated
}

func (s *Store) eventName(base string) string { return base + s.listName }

// Add upserts an entry.
// replicate=false for inbound-applied mutations and for the store's own
// persistence-replication gate.
func (s *Store) Add(kind Kind, key string, ttlSeconds int64, reason string, replicate bool) error {
	exp := time.Now().Add(time.Duration(ttlSeconds) * time.Second)

	s.mu.Lock()
	e := &Entry{Key: key, Expiration: exp, Reason: reason, Kind: kind}
	if _, exists := s.entries[kind][key]; !exists {
		s.order[kind] = append(s.order[kind], key)
	}
	s.entries[kind][key] = e
	if kind == KindIP {
		_ = s.trie.addMask(key)
	}
	persist, persistReplicated := s.persist, s.persistReplicated
	hook := s.hook
	replicator := s.replicator
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BLWLAddTotal.WithLabelValues(string(kind)).Inc()
	}
	if hook != nil {
		hook.Fire("add"+s.listName, kind, key, reason, ttlSeconds)
	}
	if replicate {
		if replicator != nil {
			replicator.ReplicateBLWL(s.listName, Mutation{Op: OpAdd, Kind: kind, Key: key, TTL: ttlSeconds, Reason: reason})
		}
	}
	if persist != nil && (replicate || persistReplicated) {
		return persist.Set(kindName(kind, s.listName), key, exp.Unix(), reason, time.Duration(ttlSeconds)*time.Second)
	}
	return nil
}

// Delete removes an entry. No-op if absent.
func (s *Store) Delete(kind Kind, key string, replicate bool) error {
	s.mu.Lock()
	_, existed := s.entries[kind][key]
	if existed {
		delete(s.entries[kind], key)
		s.order[kind] = removeString(s.order[kind], key)
		if kind == KindIP {
			_ = s.trie.deleteMask(key)
		}
	}
	persist := s.persist
	persistReplicated := s.persistReplicated
	hook := s.hook
	replicator := s.replicator
	s.mu.Unlock()

	if !existed {
		return nil
	}
	if s.metrics != nil {
		s.metrics.BLWLDeleteTotal.WithLabelValues(string(kind)).Inc()
	}
	if hook != nil {
		hook.Fire("del"+s.listName, kind, key, "", 0)
	}
	if replicate && replicator != nil {
		replicator.ReplicateBLWL(s.listName, Mutation{Op: OpDelete, Kind: kind, Key: key})
	}
	if persist != nil && (replicate || persistReplicated) {
		return persist.Delete(kindName(kind, s.listName), key)
	}
	return nil
}

// Check performs an exact match by key for LOGIN/IP_LOGIN kinds, or a
// longest-prefix match against the trie for IP kind when key parses as a
// bare address rather than a CIDR.
func (s *Store) Check(kind Kind, key string) bool {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if kind == KindIP {
		if addr, err := netip.ParseAddr(key); err == nil {
			if cidr, ok := s.trie.lookup(addr); ok {
				if e, ok := s.entries[KindIP][cidr]; ok && !e.expired(now) {
					return true
				}
			}
			return false
		}
	}
	e, ok := s.entries[kind][key]
	return ok && !e.expired(now)
}

// Get returns the full record for (kind,key), or ok=false if absent or
// expired.
func (s *Store) Get(kind Kind, key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind][key]
	if !ok || e.expired(time.Now()) {
		return Entry{}, false
	}
	return *e, true
}

// GetExpiration returns remaining seconds, or -1 if absent or expired.
func (s *Store) GetExpiration(kind Kind, key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind][key]
	if !ok {
		return -1
	}
	rem := time.Until(e.Expiration)
	if rem <= 0 {
		return -1
	}
	return int64(rem.Seconds())
}

// List returns a snapshot of entries in insertion order, taken under the
// read lock.
func (s *Store) List(kind Kind) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order[kind]))
	for _, k := range s.order[kind] {
		if e, ok := s.entries[kind][k]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// ApplyMutation applies an inbound replicated mutation with replicate=false.
func (s *Store) ApplyMutation(m Mutation) {
	switch m.Op {
	case OpAdd:
		_ = s.Add(m.Kind, m.Key, m.TTL, m.Reason, false)
	case OpDelete:
		_ = s.Delete(m.Kind, m.Key, false)
	}
}

func removeString(ss []string, v string) []string {
	for i, s := range ss {
		if s == v {
			return append(ss[:i], ss[i+1:]...)
		}
	}
	return ss
}

// expirationOrderedKeys returns (kind,key) pairs across all kinds sorted by
// expiration ascending, for the expiry worker's walk.
func (s *Store) expirationOrderedKeys() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []Entry
	for _, m := range s.entries {
		for _, e := range m {
			all = append(all, *e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Expiration.Before(all[j].Expiration) })
	return all
}
