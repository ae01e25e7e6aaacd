// Package blwl implements the blocklist/allowlist store: TTL-indexed entry
// tables partitioned by kind, a longest-prefix-match trie for IP entries,
// optional Redis persistence, and replication fan-out.
package blwl

import "time"

// Kind partitions the BL/WL table into three independent indices.
type Kind string

const (
	KindIP Kind = "ip"
	KindLogin Kind = "login"
	KindIPLogin Kind = "ip_login"
)

// kindName returns the Redis key-space name for a kind, combined with the
// store's list name ("bl"/"wl"): one of ip_bl, login_bl, ip_login_bl, ip_wl,
// login_wl, ip_login_wl.
func kindName(k Kind, listName string) string {
	return string(k) + "_" + listName
}

// Entry is one BL/WL row.
type Entry struct {
	Key string
	Expiration time.Time
	Reason string
	Kind Kind
}

func (e Entry) expired(now time.Time) bool { return !e.Expiration.After(now) }
