package replication

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// nonceSize is the XChaCha20-Poly1305 nonce length.
const nonceSize = chacha20poly1305.NonceSizeX

// sendNonce is one sender's nonce state: a big-endian uint32 counter in the
// first 4 bytes, with the remaining 20 bytes a random salt fixed for the
// life of the session.
type sendNonce struct {
	mu sync.Mutex
	salt [nonceSize - 4]byte
	counter uint32
}

func newSendNonce() (*sendNonce, error) {
	n := &sendNonce{}
	if _, err := rand.Read(n.salt[:]); err != nil {
		return nil, err
	}
	return n, nil
}

// next returns the next nonce in sequence, incrementing the counter.
func (n *sendNonce) next() [nonceSize]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counter++
	var out [nonceSize]byte
	binary.BigEndian.PutUint32(out[:4], n.counter)
	copy(out[4:], n.salt[:])
	return out
}

// recvNonceState tracks the highest counter seen from one sender, rejecting
// any message whose nonce counter does not strictly advance.
type recvNonceState struct {
	mu sync.Mutex
	highest uint32
	seen bool
}

func (r *recvNonceState) accept(nonce []byte) bool {
	if len(nonce) < 4 {
		return false
	}
	counter := binary.BigEndian.Uint32(nonce[:4])
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen && counter <= r.highest {
		return false
	}
	r.highest = counter
	r.seen = true
	return true
}

// mergeNonce constructs a composite nonce from two halves for
// handshake-style re-sync: the low 4 bytes (counter) come from lower, the
// remaining salt bytes come from higher.
func mergeNonce(lower, higher []byte) ([nonceSize]byte, error) {
	if len(lower) < 4 || len(higher) < nonceSize {
		return [nonceSize]byte{}, errors.New("mergeNonce: short input")
	}
	var out [nonceSize]byte
	copy(out[:4], lower[:4])
	copy(out[4:], higher[4:nonceSize])
	return out, nil
}
