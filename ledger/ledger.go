// Package ledger defines the boundary to the QSB ledger transport.
//
// The core hands a Gateway the operation kind, the ledger-native argument
// values, and the identity-level signature. Everything past that point is
// the gateway's concern: wrapping the call into a ledger extrinsic, the
// separate transport-level authorization signature, fee payment, inclusion
// and finalization. The outcome comes back as an opaque Receipt.
package ledger

import (
	"context"
	"errors"

	"qsb.qbck.io/did/didop"
)

// ErrNotFound is returned by Resolve when the ledger has no record for the
// requested identifier.
var ErrNotFound = errors.New("ledger: not found")

// OpDeprecateSchema is the transport-only schema deprecation call. It has no
// catalog entry of its own: deprecation reuses the registration signature
// over "QSB_SCHEMA" || schema_json, so there is no separate payload to build.
const OpDeprecateSchema = didop.Op("DeprecateSchema")

// Arg is one ledger-native argument value. Exactly one of Bytes and Roles
// is meaningful, selected by the catalog field kind for Name.
type Arg struct {
	Name  string
	Bytes []byte
	Roles []string
}

// Call is one signed change-request against the identity or schema registry.
type Call struct {
	Op        didop.Op
	Args      []Arg
	Signature []byte
}

// Event is one ledger event attributed to a submitted call.
type Event struct {
	Pallet string
	Name   string
	Params map[string]string
}

// Receipt reports the outcome of a submitted call.
type Receipt struct {
	ExtrinsicHash string
	BlockHash     string
	FinalizedHash string
	Success       bool
	Error         string
	Events        []Event
}

// Gateway is the ledger transport consumed as a black box.
//
// Implementations own all network-level timeout and retry policy; the core
// never retries a submission.
type Gateway interface {
	// GenesisHash returns the chain genesis hash used for identifier
	// derivation.
	GenesisHash(ctx context.Context) ([]byte, error)

	// FreeBalance returns the free balance of a transport-level account.
	FreeBalance(ctx context.Context, account string) (uint64, error)

	// Submit wraps the call into a ledger-native transaction, authorizes it
	// at the transport level, submits it, and waits for inclusion.
	Submit(ctx context.Context, call Call) (Receipt, error)

	// Resolve fetches the raw on-ledger details for a DID, or ErrNotFound.
	Resolve(ctx context.Context, did string) (map[string]any, error)
}
