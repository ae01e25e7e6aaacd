// Package tw implements the sliding-window sharded counter store ("TW
// store"): a keyed set of named, windowed statistics fields with background
// expiry, soft-cap LRU eviction, and an optional replication hook.
package tw

import (
	"net/netip"
	"sync"
	"time"

	"github.com/loginguard/engine/internal/metrics"
)

// Op names the TW mutation kinds carried over replication, TW
// sub-message "op" enum.
type Op string

const (
	OpNone Op = "NONE"
	OpReset Op = "RESET"
	OpResetField Op = "RESET_FIELD"
	OpAdd Op = "ADD"
	OpSub Op = "SUB"
)

// Mutation is the payload handed to a Replicator for outbound fan-out; its
// fields mirror the TW mutation's wire sub-message exactly so the
// replication envelope can serialize it without any further translation.
type Mutation struct {
	DBName string
	Op Op
	Key string
	Field string
	StrParam string
	IntParam int64
	HasStr bool
	HasInt bool
}

// Replicator is the collaborator the replication subsystem implements so the
// TW store can fan out mutations without importing it directly (avoiding an
// import cycle between tw and replication).
type Replicator interface {
	ReplicateTW(Mutation)
}

// Store is one named TW store: a field schema, a fixed shard array, and the
// shared knobs governing window size, retention, and eviction.
type Store struct {
	Name string

	mu sync.RWMutex // guards the mutable scalar config below
	windowSize int64
	numWindows int
	v4Prefix int
	v6Prefix int
	softMax int
	expireSleep time.Duration
	replicated bool

	schema map[string]FieldType
	shards []*shard

	replicator Replicator
	metrics *metrics.Registry
}

// Config describes the fixed construction-time parameters of a Store.
// NumShards cannot be changed after construction; a config reload that
// wants a different shard count must build a new Store.
type Config struct {
	Name string
	WindowSize int64
	NumWindows int
	NumShards int
	V4Prefix int
	V6Prefix int
	SoftMaxEntries int
	ExpireSleepMS int
	Replicated bool
	Schema map[string]FieldType
}

// New constructs a Store. NumShards must be >= 1.
func New(cfg Config, reg *metrics.Registry) *Store {
	if cfg.NumShards < 1 {
		cfg.NumShards = 1
	}
	sleepMS := cfg.ExpireSleepMS
	if sleepMS <= 0 {
		sleepMS = 1000
	}
	s := &Store{
		Name: cfg.Name,
		windowSize: cfg.WindowSize,
		numWindows: cfg.NumWindows,
		v4Prefix: cfg.V4Prefix,
		v6Prefix: cfg.V6Prefix,
		softMax: cfg.SoftMaxEntries,
		expireSleep: time.Duration(sleepMS) * time.Millisecond,
		replicated: cfg.Replicated,
		schema: cfg.Schema,
		shards: make([]*shard, cfg.NumShards),
		metrics: reg,
	}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

// SetReplicator wires the replication transport. Calling with nil disables
// outbound replication regardless of the replicated flag.
func (s *Store) SetReplicator(r Replicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicator = r
}

func (s *Store) EnableReplication() { s.setReplicated(true) }
func (s *Store) DisableReplication() { s.setReplicated(false) }

func (s *Store) setReplicated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicated = v
}

func (s *Store) SetV4Prefix(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v4Prefix = p
}

func (s *Store) SetV6Prefix(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v6Prefix = p
}

func (s *Store) SetSizeSoft(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softMax = n
}

func (s *Store) MaxSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.softMax
}

// Size returns the current total live entry count across all shards.
func (s *Store) Size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += sh.size()
		sh.mu.RUnlock()
	}
	return total
}

func (s *Store) prefixes() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v4Prefix, s.v6Prefix
}

func (s *Store) isReplicated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replicated
}

func (s *Store) currentReplicator() Replicator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replicator
}

// canonicalize masks an address-kind key to its configured CIDR form before
// hashing.
func (s *Store) canonicalize(v Variant) string {
	v4, v6 := s.prefixes()
	return canonicalKey(v, v4, v6)
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[shardFor(key, len(s.shards))]
}

// maybeReplicate constructs and fans out a Mutation when replicate is true
// and the store's replicated flag is set. It must run before the caller
// returns, but never while holding a shard lock (the Replicator's own I/O
// happens outside our locks).
func (s *Store) maybeReplicate(replicate bool, m Mutation) {
	if !replicate || !s.isReplicated() {
		return
	}
	if r := s.currentReplicator(); r != nil {
		m.DBName = s.Name
		r.ReplicateTW(m)
	}
}

func (s *Store) incMetric(name string) {
	if s.metrics == nil {
		return
	}
	switch name {
	case "type_mismatch":
		s.metrics.TWTypeMismatchTotal.Inc()
	case "drop_offset":
		s.metrics.TWDropOffsetTotal.Inc()
	}
}

// Add applies an additive or type-specific write to (key, field) at the
// given bucket offset (0 = current). replicate controls whether this call
// fans out over the replication transport; inbound-applied mutations must
// pass replicate=false to prevent loops.
func (s *Store) Add(key Variant, field string, value Variant, bucketOffset int, replicate bool) {
	ck := s.canonicalize(key)
	ft, ok := s.schema[field]
	if !ok {
		return
	}
	sh := s.shardFor(ck)
	now := time.Now()

	sh.mu.Lock()
	var ring *windowRing
	ok = false
	if e, existed := sh.get(ck); existed {
		ring, ok = e.fields[field]
	}
	if !ok {
		ring = newWindowRing(ft, s.windowSizeUnlocked(), s.numWindowsUnlocked())
	}
	ok = ring.write(now.Unix(), bucketOffset, func(b bucket) bool { return b.accept(value) })
	if ok {
		// Only an accepted write creates the entry and its field.
		e := sh.getOrCreate(ck)
		sh.touch(e, now)
		e.fields[field] = ring
	}
	sh.mu.Unlock()

	if !ok {
		if bucketOffset < 0 || bucketOffset >= s.numWindowsUnlocked() {
			s.incMetric("drop_offset")
		} else {
			s.incMetric("type_mismatch")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.TWAddTotal.WithLabelValues(s.Name).Inc()
	}
	s.maybeReplicate(replicate, Mutation{
		DBName: s.Name, Op: OpAdd, Key: ck, Field: field,
		StrParam: value.Str, IntParam: value.Int,
		HasStr: value.Kind == KindString, HasInt: value.Kind == KindInt,
	})
}

// Sub subtracts from an additive field, clamped at zero. No-op for
// non-additive field types.
func (s *Store) Sub(key Variant, field string, value Variant, replicate bool) {
	ck := s.canonicalize(key)
	ft, ok := s.schema[field]
	if !ok {
		return
	}
	sh := s.shardFor(ck)
	now := time.Now()

	sh.mu.Lock()
	e := sh.getOrCreate(ck)
	sh.touch(e, now)
	ring, ok := e.fields[field]
	if !ok {
		ring = newWindowRing(ft, s.windowSizeUnlocked(), s.numWindowsUnlocked())
		e.fields[field] = ring
	}
	b := ring.currentBucket(now.Unix())
	ok = b.sub(value)
	sh.mu.Unlock()

	if !ok {
		s.incMetric("type_mismatch")
		return
	}
	s.maybeReplicate(replicate, Mutation{
		DBName: s.Name, Op: OpSub, Key: ck, Field: field, IntParam: value.Int, HasInt: true,
	})
}

// Get returns the aggregate across all non-expired windows.
func (s *Store) Get(key Variant, field, aux string) (int64, bool) {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.get(ck)
	if !ok {
		return 0, false
	}
	ring, ok := e.fields[field]
	if !ok {
		return 0, false
	}
	acc := ring.aggregate(time.Now().Unix())
	return acc.intValue(aux)
}

// GetCurrent returns the value of just the current bucket.
func (s *Store) GetCurrent(key Variant, field, aux string) (int64, bool) {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.get(ck)
	if !ok {
		return 0, false
	}
	ring, ok := e.fields[field]
	if !ok {
		return 0, false
	}
	b := ring.currentBucket(time.Now().Unix())
	return b.intValue(aux)
}

// GetWindows returns one projected value per window, newest first.
func (s *Store) GetWindows(key Variant, field, aux string) ([]int64, bool) {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.get(ck)
	if !ok {
		return nil, false
	}
	ring, ok := e.fields[field]
	if !ok {
		return nil, false
	}
	return ring.perWindowValues(time.Now().Unix(), aux)
}

// FieldValue names one field's int projection, for GetAllFields.
type FieldValue struct {
	Field string
	Value int64
}

// GetAllFields returns every field on key that has an int projection,
// skipping fields that don't.
func (s *Store) GetAllFields(key Variant) []FieldValue {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.get(ck)
	if !ok {
		return nil
	}
	now := time.Now().Unix()
	out := make([]FieldValue, 0, len(e.fields))
	for name, ring := range e.fields {
		acc := ring.aggregate(now)
		if v, ok := acc.intValue(""); ok {
			out = append(out, FieldValue{Field: name, Value: v})
		}
	}
	return out
}

// Reset zeros every field on key as a single atomic point: no concurrent
// reader on the same shard observes a half-reset entry.
func (s *Store) Reset(key Variant, replicate bool) {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.Lock()
	if e, ok := sh.get(ck); ok {
		for _, ring := range e.fields {
			ring.resetAll()
		}
	}
	sh.mu.Unlock()

	s.maybeReplicate(replicate, Mutation{DBName: s.Name, Op: OpReset, Key: ck})
}

// ResetField zeros a single named field on key.
func (s *Store) ResetField(key Variant, field string, replicate bool) {
	ck := s.canonicalize(key)
	sh := s.shardFor(ck)

	sh.mu.Lock()
	if e, ok := sh.get(ck); ok {
		if ring, ok := e.fields[field]; ok {
			ring.resetAll()
		}
	}
	sh.mu.Unlock()

	s.maybeReplicate(replicate, Mutation{DBName: s.Name, Op: OpResetField, Key: ck, Field: field})
}

func (s *Store) windowSizeUnlocked() int64 { return s.windowSize }
func (s *Store) numWindowsUnlocked() int { return s.numWindows }

// ApplyMutation applies an inbound replicated Mutation with replicate=false,
// preventing replication loops.
func (s *Store) ApplyMutation(m Mutation) {
	switch m.Op {
	case OpAdd:
		v := mutationValue(m)
		s.Add(StringVariant(m.Key), m.Field, v, 0, false)
	case OpSub:
		s.Sub(StringVariant(m.Key), m.Field, IntVariant(m.IntParam), false)
	case OpReset:
		s.Reset(StringVariant(m.Key), false)
	case OpResetField:
		s.ResetField(StringVariant(m.Key), m.Field, false)
	}
}

func mutationValue(m Mutation) Variant {
	if m.HasStr {
		return StringVariant(m.StrParam)
	}
	return IntVariant(m.IntParam)
}

// Keys derived from net addresses never need canonicalize called twice; this
// helper exists so callers in adapter/ can build an address Variant from a
// parsed netip.Addr without importing tw's internals.
func AddressKey(a netip.Addr) Variant { return AddrVariant(a) }
