package blwl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIPCheckLongestPrefixMatch(t *testing.T) {
	s := New("bl", nil)
	require.NoError(t, s.Add(KindIP, "192.0.2.0/24", 60, "block", false))

	require.True(t, s.Check(KindIP, "192.0.2.17"))
	require.False(t, s.Check(KindIP, "198.51.100.1"))
}

func TestIPCheckLongestPrefixWins(t *testing.T) {
	s := New("bl", nil)
	require.NoError(t, s.Add(KindIP, "192.0.2.0/24", 300, "wide", false))
	require.NoError(t, s.Add(KindIP, "192.0.2.16/30", 300, "narrow", false))

	e, ok := s.Get(KindIP, "192.0.2.16/30")
	require.True(t, ok)
	require.Equal(t, "narrow", e.Reason)
	require.True(t, s.Check(KindIP, "192.0.2.17"))
}

func TestReAddReplacesExpirationAndReason(t *testing.T) {
	s := New("bl", nil)
	require.NoError(t, s.Add(KindLogin, "alice", 60, "first", false))
	require.NoError(t, s.Add(KindLogin, "alice", 3600, "second", false))

	e, ok := s.Get(KindLogin, "alice")
	require.True(t, ok)
	require.Equal(t, "second", e.Reason)
	require.Len(t, s.List(KindLogin), 1, "re-adding must not duplicate the entry")
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	s := New("bl", nil)
	require.NoError(t, s.Delete(KindLogin, "nobody", false))
}

func TestGetExpirationNegativeWhenAbsent(t *testing.T) {
	s := New("wl", nil)
	require.Equal(t, int64(-1), s.GetExpiration(KindLogin, "nobody"))
}

func TestExpiryPassRemovesStaleEntries(t *testing.T) {
	s := New("bl", nil)
	require.NoError(t, s.Add(KindIP, "203.0.113.5/32", 0, "abuse", false))
	// a ttlSeconds of 0 expires immediately.
	time.Sleep(5 * time.Millisecond)
	s.expiryPass()

	require.False(t, s.Check(KindIP, "203.0.113.5"))
	require.Len(t, s.List(KindIP), 0)
}

func TestListIsInsertionOrder(t *testing.T) {
	s := New("wl", nil)
	require.NoError(t, s.Add(KindLogin, "a", 60, "", false))
	require.NoError(t, s.Add(KindLogin, "b", 60, "", false))
	require.NoError(t, s.Add(KindLogin, "c", 60, "", false))

	got := s.List(KindLogin)
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].Key, got[1].Key, got[2].Key})
}
