package tw

import (
	"context"
	"time"
)

// StartExpiry launches one background goroutine per shard. Each sleeps the
// store's configured interval and, for every pass: (1) removes entries whose
// retention horizon (last_access + window_size*num_windows) has elapsed,
// then (2) if the shard still exceeds its share of the soft cap, evicts
// least-recently-used entries until at cap. The worker never
// holds the shard lock across I/O — eviction only touches in-memory maps.
func (s *Store) StartExpiry(ctx context.Context) {
	perShardCap := s.softMax
	if n := len(s.shards); n > 0 && perShardCap > 0 {
		perShardCap = perShardCap / n
		if perShardCap < 1 {
			perShardCap = 1
		}
	}
	for _, sh := range s.shards {
		go s.expiryLoop(ctx, sh, perShardCap)
	}
}

func (s *Store) expiryLoop(ctx context.Context, sh *shard, perShardCap int) {
	ticker := time.NewTicker(s.expireSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expiryPass(sh, perShardCap)
		}
	}
}

func (s *Store) expiryPass(sh *shard, perShardCap int) {
	horizon := time.Duration(s.windowSize) * time.Second * time.Duration(s.numWindows)
	now := time.Now()

	sh.mu.Lock()
	var stale []string
	for k, e := range sh.entries {
		if now.Sub(e.lastAccess) >= horizon {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		sh.delete(k)
	}

	evicted := 0
	if perShardCap > 0 {
		for sh.size() > perShardCap {
			n := sh.lru.popOldest()
			if n == nil {
				break
			}
			delete(sh.entries, n.key)
			evicted++
		}
	}
	sh.mu.Unlock()

	if s.metrics == nil {
		return
	}
	if len(stale) > 0 {
		s.metrics.TWEvictionsTotal.WithLabelValues(s.Name, "expired").Add(float64(len(stale)))
	}
	if evicted > 0 {
		s.metrics.TWEvictionsTotal.WithLabelValues(s.Name, "soft_cap").Add(float64(evicted))
	}
	s.metrics.TWEntriesGauge.WithLabelValues(s.Name).Set(float64(s.Size()))
}
