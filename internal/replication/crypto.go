package replication

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// seal encrypts plaintext under key with an explicit caller-supplied nonce
// (so the nonce-discipline counter in nonce.go, not a fresh random value per
// message, drives uniqueness), returning nonce||ciphertext.
func seal(key []byte, nonce [nonceSize]byte, plaintext []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("replication: key must be 32 bytes")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce[:], plaintext, nil)
	return append(append([]byte(nil), nonce[:]...), ct...), nil
}

// open verifies and decrypts a blob produced by seal, returning the nonce
// and plaintext separately so the caller can run nonce-discipline checks.
func open(key []byte, blob []byte) (nonce []byte, plaintext []byte, err error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, nil, errors.New("replication: key must be 32 bytes")
	}
	if len(blob) < nonceSize+chacha20poly1305.Overhead {
		return nil, nil, errors.New("replication: ciphertext too short")
	}
	n, ciphertext := blob[:nonceSize], blob[nonceSize:]
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	pt, err := aead.Open(nil, n, ciphertext, nil)
	if err != nil {
		return nil, nil, err
	}
	return n, pt, nil
}
