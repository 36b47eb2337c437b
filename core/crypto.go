package core

// crypto.go – hashing, Ed25519 keys/signatures and address rendering. No key
// material is ever held by the core; keys are passed in only long enough to
// build and sign a transaction or coinbase.

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// GenerateKeypair returns a new Ed25519 key pair. The public key, reduced to
// an Address, is the account identifier.
func GenerateKeypair() (Address, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Address{}, nil, fmt.Errorf("generate keypair: %w", err)
	}
	var addr Address
	copy(addr[:], pub)
	return addr, priv, nil
}

// Sign signs msg with priv using Ed25519.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature by addr over msg.
// ed25519.Verify already rejects non-canonical (malleable) signature
// encodings per RFC 8032.
func Verify(addr Address, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig)
}

// SHA256 hashes b.
func SHA256(b []byte) Hash {
	return sha256.Sum256(b)
}
