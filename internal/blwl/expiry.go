package blwl

import (
	"context"
	"time"
)

// StartExpiry runs the dedicated expiry worker: it wakes every second,
// walks the expiration-ordered index from the smallest expiration, and
// stops at the first still-live entry. Expiry is not replicated; peers
// expire independently.
func (s *Store) StartExpiry(ctx context.Context) {
	go s.expiryLoop(ctx)
}

func (s *Store) expiryLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expiryPass()
		}
	}
}

func (s *Store) expiryPass() {
	now := time.Now()
	ordered := s.expirationOrderedKeys()

	for _, e := range ordered {
		if e.Expiration.After(now) {
			break
		}
		s.mu.Lock()
		if cur, ok := s.entries[e.Kind][e.Key]; ok && !cur.Expiration.After(now) {
			delete(s.entries[e.Kind], e.Key)
			s.order[e.Kind] = removeString(s.order[e.Kind], e.Key)
			if e.Kind == KindIP {
				_ = s.trie.deleteMask(e.Key)
			}
		}
		hook := s.hook
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.BLWLExpiredTotal.WithLabelValues(string(e.Kind)).Inc()
		}
		if hook != nil {
			hook.Fire("expire"+s.listName, e.Kind, e.Key, e.Reason, 0)
		}
	}
}
