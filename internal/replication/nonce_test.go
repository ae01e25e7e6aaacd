package replication

import (
	"bytes"
	"testing"
)

func TestSendNonceIncrements(t *testing.T) {
	sn, err := newSendNonce()
	if err != nil {
		t.Fatalf("newSendNonce: %v", err)
	}
	a := sn.next()
	b := sn.next()
	if a == b {
		t.Fatal("successive nonces must differ")
	}
	// counter occupies the first 4 bytes; salt (remainder) must be stable.
	if !bytes.Equal(a[4:], b[4:]) {
		t.Fatal("salt portion of the nonce must stay stable within a session")
	}
}

func TestRecvNonceStateRejectsNonAdvancing(t *testing.T) {
	sn, _ := newSendNonce()
	rs := &recvNonceState{}

	n1 := sn.next()
	if !rs.accept(n1[:]) {
		t.Fatal("first nonce must be accepted")
	}
	n2 := sn.next()
	if !rs.accept(n2[:]) {
		t.Fatal("strictly advancing nonce must be accepted")
	}
	// Replay of an earlier nonce must be rejected.
	if rs.accept(n1[:]) {
		t.Fatal("replayed nonce must be rejected")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sn, _ := newSendNonce()
	nonce := sn.next()

	blob, err := seal(key, nonce, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	gotNonce, plaintext, err := open(key, blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plaintext) != "payload" {
		t.Fatalf("got plaintext %q", plaintext)
	}
	if string(gotNonce) != string(nonce[:]) {
		t.Fatal("recovered nonce must match sealed nonce")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	sn, _ := newSendNonce()
	blob, _ := seal(key, sn.next(), []byte("payload"))
	blob[len(blob)-1] ^= 0xFF
	if _, _, err := open(key, blob); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}

func TestMergeNonceComposesCounterAndSalt(t *testing.T) {
	lower := []byte{0, 0, 0, 7, 0, 0, 0, 0}
	higher := make([]byte, nonceSize)
	for i := range higher {
		higher[i] = byte(i + 1)
	}
	merged, err := mergeNonce(lower, higher)
	if err != nil {
		t.Fatalf("mergeNonce: %v", err)
	}
	if merged[0] != 0 || merged[1] != 0 || merged[2] != 0 || merged[3] != 7 {
		t.Fatalf("expected counter from lower, got %v", merged[:4])
	}
	if merged[4] != higher[4] {
		t.Fatalf("expected salt from higher, got %v", merged[4:])
	}
}
