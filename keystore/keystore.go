// Package keystore persists a QSB identity keypair encrypted at rest.
//
// The private key is sealed with AES-256-GCM under a key derived from the
// holder's password via PBKDF2-SHA256. The store file holds exactly one
// record; a rotation writes a complete new record, replacing the old one
// atomically (write-to-temp, fsync, rename). The GCM tag detects wrong
// passwords and corruption on load; the rename is what makes the write
// atomic.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"qsb.qbck.io/did/keys"
)

// FileName is the store file written under the store directory.
const FileName = "did_store.json"

const (
	kdfIterations = 390000
	kdfPrefix     = "pbkdf2_sha256_"
	saltSize      = 16
	nonceSize     = 12
	keySize       = 32
	gcmTagSize    = 16
)

var (
	// ErrNotFound means no store file exists yet (first run). It is a
	// signal, not a failure: the caller should generate a new identity.
	ErrNotFound = errors.New("keystore: no stored keypair")

	// ErrDecryptFailed means the GCM tag did not verify: wrong password or
	// a corrupted/tampered store. Never treat this as ErrNotFound; the
	// two require different recovery actions.
	ErrDecryptFailed = errors.New("keystore: decryption failed (wrong password or corrupted store)")

	// ErrInvalid means the record is structurally unreadable.
	ErrInvalid = errors.New("keystore: store record is invalid")
)

// Record is the on-disk shape of the stored keypair.
type Record struct {
	DID           string `json:"did"`
	PublicKeyHex  string `json:"public_key_hex"`
	PrivateKeyEnc string `json:"private_key_enc"`
	SaltHex       string `json:"salt_hex"`
	NonceHex      string `json:"nonce_hex"`
	TagHex        string `json:"tag_hex"`
	KDF           string `json:"kdf"`
}

// Store reads and writes the single key record under Dir.
//
// One logical owner per store path: concurrent Save from two processes
// against the same directory is not protected against.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the full path of the store file.
func (s *Store) Path() string {
	return filepath.Join(s.Dir, FileName)
}

// Save encrypts the private key under password and atomically replaces the
// store file with a complete new record.
func (s *Store) Save(did string, kp keys.Keypair, password string) error {
	if password == "" {
		return errors.New("keystore: password must not be empty")
	}
	if did == "" {
		return errors.New("keystore: did must not be empty")
	}
	if len(kp.Public) == 0 || len(kp.Private) == 0 {
		return errors.New("keystore: keypair must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keystore: salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("keystore: nonce: %w", err)
	}

	key := deriveKey(password, salt, kdfIterations)
	defer zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return err
	}
	sealed := aead.Seal(nil, nonce, kp.Private, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	rec := Record{
		DID:           did,
		PublicKeyHex:  hex.EncodeToString(kp.Public),
		PrivateKeyEnc: base64.StdEncoding.EncodeToString(ciphertext),
		SaltHex:       hex.EncodeToString(salt),
		NonceHex:      hex.EncodeToString(nonce),
		TagHex:        hex.EncodeToString(tag),
		KDF:           kdfPrefix + strconv.Itoa(kdfIterations),
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal record: %w", err)
	}
	return s.writeAtomic(raw)
}

// Load re-derives the symmetric key from the stored salt and password and
// returns the decrypted keypair. Returns ErrNotFound when no store file
// exists and ErrDecryptFailed when the authentication tag does not verify.
func (s *Store) Load(password string) (string, keys.Keypair, error) {
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", keys.Keypair{}, ErrNotFound
		}
		return "", keys.Keypair{}, fmt.Errorf("keystore: read store: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", keys.Keypair{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	iterations, err := parseKDF(rec.KDF)
	if err != nil {
		return "", keys.Keypair{}, err
	}
	salt, err := hex.DecodeString(rec.SaltHex)
	if err != nil || len(salt) < saltSize {
		return "", keys.Keypair{}, fmt.Errorf("%w: bad salt", ErrInvalid)
	}
	nonce, err := hex.DecodeString(rec.NonceHex)
	if err != nil || len(nonce) != nonceSize {
		return "", keys.Keypair{}, fmt.Errorf("%w: bad nonce", ErrInvalid)
	}
	tag, err := hex.DecodeString(rec.TagHex)
	if err != nil || len(tag) != gcmTagSize {
		return "", keys.Keypair{}, fmt.Errorf("%w: bad tag", ErrInvalid)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(rec.PrivateKeyEnc)
	if err != nil {
		return "", keys.Keypair{}, fmt.Errorf("%w: bad ciphertext", ErrInvalid)
	}
	public, err := hex.DecodeString(rec.PublicKeyHex)
	if err != nil {
		return "", keys.Keypair{}, fmt.Errorf("%w: bad public key", ErrInvalid)
	}

	key := deriveKey(password, salt, iterations)
	defer zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return "", keys.Keypair{}, err
	}
	private, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", keys.Keypair{}, ErrDecryptFailed
	}
	return rec.DID, keys.Keypair{Public: public, Private: private}, nil
}

// Exists reports whether a store file is present, without touching key
// material or the password.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

func (s *Store) writeAtomic(raw []byte) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("keystore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("keystore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("keystore: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("keystore: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("keystore: rename: %w", err)
	}
	return nil
}

func parseKDF(id string) (int, error) {
	rest, ok := strings.CutPrefix(id, kdfPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported kdf %q", ErrInvalid, id)
	}
	iterations, err := strconv.Atoi(rest)
	if err != nil || iterations < kdfIterations {
		// Fewer iterations than the client ever wrote means the record
		// was tampered with or produced by a misconfigured client.
		return 0, fmt.Errorf("%w: unsupported kdf %q", ErrInvalid, id)
	}
	return iterations, nil
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: gcm: %w", err)
	}
	return aead, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
