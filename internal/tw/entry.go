package tw

import "time"

// entry is a TW store row: a key and its named, windowed fields. Entries are
// created on first write, mutated only by add/sub/reset, and evicted by the
// expiry worker — there is no explicit destroy.
type entry struct {
	key string
	fields map[string]*windowRing
	lastAccess time.Time
	// lruElem is this entry's node in its shard's LRU list, maintained
	// by the shard so eviction-by-last-access doesn't need a full scan.
	lruElem *lruNode
}

func newEntry(key string) *entry {
	return &entry{key: key, fields: make(map[string]*windowRing)}
}

func (e *entry) touch(now time.Time) { e.lastAccess = now }
