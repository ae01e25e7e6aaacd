package blwl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister implements Persister over a lazily-connected go-redis
// client: keys are "<prefix>:<kind_name>:<key>", values are
// "<abs_expiration_epoch>:<reason>", written with native EX.
type RedisPersister struct {
	addr string
	prefix string
	connectTimeout time.Duration

	client *redis.Client
}

// NewRedisPersister builds a persister for host:port. The connection itself
// is established lazily on first use.
func NewRedisPersister(host string, port int, prefix string, connectTimeout time.Duration) *RedisPersister {
	return &RedisPersister{
		addr: fmt.Sprintf("%s:%d", host, port),
		prefix: prefix,
		connectTimeout: connectTimeout,
	}
}

func (p *RedisPersister) conn() *redis.Client {
	if p.client == nil {
		p.client = redis.NewClient(&redis.Options{
			Addr: p.addr,
			DialTimeout: p.connectTimeout,
		})
	}
	return p.client
}

// reconnect drops the current client so the next op re-dials.
func (p *RedisPersister) reconnect() {
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}

func (p *RedisPersister) redisKey(kindName, key string) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, kindName, key)
}

func (p *RedisPersister) Set(kindName, key string, absExpiration int64, reason string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout)
	defer cancel()
	val := fmt.Sprintf("%d:%s", absExpiration, reason)
	err := p.conn().Set(ctx, p.redisKey(kindName, key), val, ttl).Err()
	if err != nil {
		p.reconnect()
	}
	return err
}

func (p *RedisPersister) Delete(kindName, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout)
	defer cancel()
	err := p.conn().Del(ctx, p.redisKey(kindName, key)).Err()
	if err != nil {
		p.reconnect()
	}
	return err
}

// ScanAll performs a SCAN over keys matching "<prefix>:<kindName>:*" and
// reads each scanned batch back with one pipelined GET per key, returning
// bare key -> "abs_exp:reason" with the prefix/kindName segments stripped.
func (p *RedisPersister) ScanAll(kindName string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout)
	defer cancel()

	pattern := fmt.Sprintf("%s:%s:*", p.prefix, kindName)
	client := p.conn()

	out := make(map[string]string)
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			p.reconnect()
			return nil, err
		}
		if len(keys) > 0 {
			pipe := client.Pipeline()
			cmds := make([]*redis.StringCmd, len(keys))
			for i, k := range keys {
				cmds[i] = pipe.Get(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				p.reconnect()
				return nil, err
			}
			prefixLen := len(p.prefix) + 1 + len(kindName) + 1
			for i, k := range keys {
				v, err := cmds[i].Result()
				if err != nil {
					continue
				}
				bareKey := k
				if len(k) > prefixLen {
					bareKey = k[prefixLen:]
				}
				out[bareKey] = v
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// parseValue splits a "<abs_expiration_epoch>:<reason>" Redis value.
func parseValue(v string) (absExpiration int64, reason string, ok bool) {
	idx := strings.IndexByte(v, ':')
	if idx < 0 {
		return 0, "", false
	}
	n, err := strconv.ParseInt(v[:idx], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, v[idx+1:], true
}

// LoadPersisted repopulates s from everything currently persisted across
// all three kinds, computing each entry's remaining TTL from its absolute
// expiration. Entries already expired are skipped.
func (s *Store) LoadPersisted() error {
	s.mu.RLock()
	persist := s.persist
	s.mu.RUnlock()
	if persist == nil {
		return nil
	}

	now := time.Now()
	for _, kind := range []Kind{KindIP, KindLogin, KindIPLogin} {
		kn := kindName(kind, s.listName)
		raw, err := persist.ScanAll(kn)
		if err != nil {
			return err
		}
		for key, v := range raw {
			absExp, reason, ok := parseValue(v)
			if !ok {
				continue
			}
			expTime := time.Unix(absExp, 0)
			if !expTime.After(now) {
				continue
			}
			ttl := int64(expTime.Sub(now).Seconds())
			if err := s.Add(kind, key, ttl, reason, false); err != nil {
				return err
			}
		}
	}
	return nil
}
