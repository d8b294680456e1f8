package keys

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func mustKeypair(t *testing.T, seed byte) Keypair {
	t.Helper()
	kp, err := Generate(io.Reader(&deterministicReader{b: seed}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return kp
}

func TestGenerate_Sizes(t *testing.T) {
	kp := mustKeypair(t, 0x01)
	if len(kp.Public) != PublicKeySize {
		t.Fatalf("public key size %d, want %d", len(kp.Public), PublicKeySize)
	}
	if len(kp.Private) != PrivateKeySize {
		t.Fatalf("private key size %d, want %d", len(kp.Private), PrivateKeySize)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	kp := mustKeypair(t, 0x01)
	msg := []byte("QSB_DID_CREATE payload bytes")

	sig, err := Sign(kp.Private, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature size %d, want %d", len(sig), SignatureSize)
	}

	ok, err := Verify(kp.Public, msg, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("signature did not verify")
	}
}

func TestVerify_WrongMessageIsFalseNotError(t *testing.T) {
	kp := mustKeypair(t, 0x01)
	sig, err := Sign(kp.Private, []byte("message one"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(kp.Public, []byte("message two"), sig)
	if err != nil {
		t.Fatalf("Verify returned error for wrong message: %v", err)
	}
	if ok {
		t.Fatalf("signature verified against the wrong message")
	}
}

func TestVerify_WrongKeyIsFalseNotError(t *testing.T) {
	signer := mustKeypair(t, 0x01)
	other := mustKeypair(t, 0x7F)
	msg := []byte("payload")

	sig, err := Sign(signer.Private, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(other.Public, msg, sig)
	if err != nil {
		t.Fatalf("Verify returned error for wrong key: %v", err)
	}
	if ok {
		t.Fatalf("signature verified under the wrong public key")
	}
}

func TestSignVerify_BadKeyMaterial(t *testing.T) {
	kp := mustKeypair(t, 0x01)
	msg := []byte("payload")
	sig, err := Sign(kp.Private, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Sign(kp.Private[:10], msg); !errors.Is(err, ErrBadKeyMaterial) {
		t.Fatalf("short private key: got %v, want ErrBadKeyMaterial", err)
	}
	if _, err := Verify(kp.Public[:10], msg, sig); !errors.Is(err, ErrBadKeyMaterial) {
		t.Fatalf("short public key: got %v, want ErrBadKeyMaterial", err)
	}
	if _, err := Verify(kp.Public, msg, sig[:10]); !errors.Is(err, ErrBadKeyMaterial) {
		t.Fatalf("short signature: got %v, want ErrBadKeyMaterial", err)
	}
}

func TestNewKeypairFromSeed_Deterministic(t *testing.T) {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := NewKeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	b, err := NewKeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	if !bytes.Equal(a.Public, b.Public) || !bytes.Equal(a.Private, b.Private) {
		t.Fatalf("seeded keypair is not deterministic")
	}

	if _, err := NewKeypairFromSeed(seed[:SeedSize-1]); !errors.Is(err, ErrBadKeyMaterial) {
		t.Fatalf("short seed: got %v, want ErrBadKeyMaterial", err)
	}
}

func TestZero_ClearsPrivateKey(t *testing.T) {
	kp := mustKeypair(t, 0x01)
	kp.Zero()
	for _, b := range kp.Private {
		if b != 0 {
			t.Fatalf("private key not zeroed")
		}
	}
}
