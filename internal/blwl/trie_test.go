package blwl

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrieLongestPrefix(t *testing.T) {
	tr := newMaskTrie()
	require.NoError(t, tr.addMask("10.0.0.0/8"))
	require.NoError(t, tr.addMask("10.1.0.0/16"))

	addr := netip.MustParseAddr("10.1.2.3")
	cidr, ok := tr.lookup(addr)
	require.True(t, ok)
	require.Equal(t, "10.1.0.0/16", cidr)
}

func TestTrieDeleteMask(t *testing.T) {
	tr := newMaskTrie()
	require.NoError(t, tr.addMask("192.0.2.0/24"))
	require.NoError(t, tr.deleteMask("192.0.2.0/24"))

	_, ok := tr.lookup(netip.MustParseAddr("192.0.2.1"))
	require.False(t, ok)
}

func TestTrieNoMatch(t *testing.T) {
	tr := newMaskTrie()
	require.NoError(t, tr.addMask("203.0.113.0/24"))
	_, ok := tr.lookup(netip.MustParseAddr("198.51.100.1"))
	require.False(t, ok)
}

func TestTrieIPv6(t *testing.T) {
	tr := newMaskTrie()
	require.NoError(t, tr.addMask("2001:db8::/32"))
	cidr, ok := tr.lookup(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	require.Equal(t, "2001:db8::/32", cidr)
}
