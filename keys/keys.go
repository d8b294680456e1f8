// Package keys wraps the ML-DSA-44 signature primitive used for QSB
// identity-level signatures.
//
// The primitive is treated as opaque: this package generates keypairs,
// signs exact payload bytes, and verifies signatures. It never hashes,
// truncates, or pads on behalf of the caller.
package keys

import (
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

// Key and signature sizes, fixed by ML-DSA-44.
const (
	PublicKeySize  = mldsa44.PublicKeySize
	PrivateKeySize = mldsa44.PrivateKeySize
	SignatureSize  = mldsa44.SignatureSize
	SeedSize       = mldsa44.SeedSize
)

// ErrBadKeyMaterial is returned when a key or signature has the wrong
// length or cannot be parsed. Malformed material is never silently
// truncated or padded.
var ErrBadKeyMaterial = errors.New("keys: malformed key material")

// Keypair holds one identity keypair as raw bytes.
//
// The private half is a secret: callers own it for the duration of one
// process run and should Zero it when done. It must never be logged.
type Keypair struct {
	Public  []byte
	Private []byte
}

// Generate returns a fresh ML-DSA-44 keypair read from rand.
func Generate(rand io.Reader) (Keypair, error) {
	pk, sk, err := mldsa44.GenerateKey(rand)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: generate: %w", err)
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal public key: %w", err)
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal private key: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// NewKeypairFromSeed derives a keypair deterministically from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != SeedSize {
		return Keypair{}, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrBadKeyMaterial, SeedSize, len(seed))
	}
	var s [SeedSize]byte
	copy(s[:], seed)
	pk, sk := mldsa44.NewKeyFromSeed(&s)
	pub, err := pk.MarshalBinary()
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal public key: %w", err)
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal private key: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// Sign returns the ML-DSA-44 signature over message.
func Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrBadKeyMaterial, PrivateKeySize, len(privateKey))
	}
	var sk mldsa44.PrivateKey
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyMaterial, err)
	}
	sig := make([]byte, SignatureSize)
	if err := mldsa44.SignTo(&sk, message, nil, false, sig); err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether signature is a valid ML-DSA-44 signature over
// message by publicKey. A wrong-message or wrong-key signature yields
// (false, nil); malformed key or signature lengths yield an error.
func Verify(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != PublicKeySize {
		return false, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrBadKeyMaterial, PublicKeySize, len(publicKey))
	}
	if len(signature) != SignatureSize {
		return false, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrBadKeyMaterial, SignatureSize, len(signature))
	}
	var pk mldsa44.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadKeyMaterial, err)
	}
	return mldsa44.Verify(&pk, message, nil, signature), nil
}

// Zero overwrites the private key bytes.
func (kp *Keypair) Zero() {
	if kp == nil {
		return
	}
	for i := range kp.Private {
		kp.Private[i] = 0
	}
}
