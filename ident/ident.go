// Package ident derives QSB ledger identifiers.
//
// A DID identifier is a pure function of the chain genesis hash and a
// public key; a schema identifier is a pure function of the genesis hash
// and the schema JSON bytes. The ledger recomputes both on its side, so
// the hash primitive (BLAKE2b-256) and the domain tags are fixed.
package ident

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// DIDPrefix is the textual prefix of every QSB DID.
	DIDPrefix = "did:qsb:"
	// SchemaPrefix is the textual prefix of every QSB schema identifier.
	SchemaPrefix = "did:qsb:schema:"

	didTag    = "QSB_DID"
	schemaTag = "QSB_SCHEMA"
)

var errEmptyInput = errors.New("ident: empty input bytes")

// DeriveDID returns the DID string for a public key under the given chain
// genesis hash: "did:qsb:" + base58(blake2b256("QSB_DID"||genesis||pub)).
func DeriveDID(genesis, publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", errEmptyInput
	}
	digest := deriveDigest(didTag, genesis, publicKey)
	return DIDPrefix + base58.Encode(digest), nil
}

// DeriveSchemaID returns the schema identifier for canonical schema JSON
// under the given chain genesis hash:
// "did:qsb:schema:" + base58(blake2b256("QSB_SCHEMA"||genesis||schemaJSON)).
func DeriveSchemaID(genesis, schemaJSON []byte) (string, error) {
	if len(schemaJSON) == 0 {
		return "", errEmptyInput
	}
	digest := deriveDigest(schemaTag, genesis, schemaJSON)
	return SchemaPrefix + base58.Encode(digest), nil
}

func deriveDigest(tag string, genesis, input []byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 with a nil key cannot fail.
		panic(err)
	}
	_, _ = h.Write([]byte(tag))
	_, _ = h.Write(genesis)
	_, _ = h.Write(input)
	return h.Sum(nil)
}

// ParseGenesisHex decodes a genesis hash as reported by the ledger RPC,
// tolerating a leading "0x" and surrounding whitespace.
func ParseGenesisHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("ident: empty genesis hash")
	}
	return b, nil
}
