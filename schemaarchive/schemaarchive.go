// Package schemaarchive keeps an immutable local copy of every schema the
// client has registered, keyed by content identifier.
//
// The archive is an audit trail: registration sends the schema JSON to the
// ledger, and the archive preserves the exact bytes that were signed so they
// can be re-derived and re-verified later. Objects are stored offline and
// deterministically; the archive never uses the network and never depends on
// wall-clock time.
package schemaarchive

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound  = errors.New("schemaarchive: not found")
	ErrImmutable = errors.New("schemaarchive: immutable object mismatch")
)

// Archive is a filesystem-backed content-addressed store of schema JSON.
type Archive struct {
	root string
}

// New constructs an archive rooted at root. The directory is created if
// needed.
func New(root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("schemaarchive: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Archive{root: root}, nil
}

// CIDFor returns the CIDv1 (raw multicodec, sha2-256 multihash) of data.
func CIDFor(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Put archives schemaJSON and returns its CID. Put is idempotent; archiving
// different bytes under an existing CID path is an immutability violation.
func (a *Archive) Put(schemaJSON []byte) (cid.Cid, error) {
	id, err := CIDFor(schemaJSON)
	if err != nil {
		return cid.Undef, err
	}

	path := a.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := a.Get(id)
			if rerr != nil {
				return cid.Undef, ErrImmutable
			}
			if string(existing) != string(schemaJSON) {
				return cid.Undef, ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	defer f.Close()

	if _, err := f.Write(schemaJSON); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

// Get returns the archived bytes for id, verifying they still hash to id.
func (a *Archive) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(a.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	got, err := CIDFor(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, ErrImmutable
	}
	return b, nil
}

// Has reports whether id is archived.
func (a *Archive) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(a.pathFor(id))
	return err == nil
}

func (a *Archive) pathFor(id cid.Cid) string {
	s := id.String()
	// Shard by the trailing characters; CID prefixes are shared.
	shard := s
	if len(s) > 2 {
		shard = s[len(s)-2:]
	}
	return filepath.Join(a.root, shard, s)
}
