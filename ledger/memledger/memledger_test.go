package memledger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/ident"
	"qsb.qbck.io/did/keys"
	"qsb.qbck.io/did/ledger"
)

var testGenesis = bytes.Repeat([]byte{0x42}, 32)

func testKeypair(t *testing.T, fill byte) keys.Keypair {
	t.Helper()
	kp, err := keys.NewKeypairFromSeed(bytes.Repeat([]byte{fill}, keys.SeedSize))
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	return kp
}

func signedCall(t *testing.T, kp keys.Keypair, op didop.Op, args []ledger.Arg, values ...didop.Value) ledger.Call {
	t.Helper()
	payload, err := didop.Build(op, values...)
	if err != nil {
		t.Fatalf("Build(%s): %v", op, err)
	}
	sig, err := keys.Sign(kp.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return ledger.Call{Op: op, Args: args, Signature: sig}
}

func createDID(t *testing.T, l *Ledger, kp keys.Keypair) string {
	t.Helper()
	call := signedCall(t, kp, didop.CreateIdentity,
		[]ledger.Arg{{Name: "public_key", Bytes: kp.Public}},
		didop.Bytes(kp.Public))
	receipt, err := l.Submit(context.Background(), call)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("create rejected: %s", receipt.Error)
	}
	did, err := ident.DeriveDID(testGenesis, kp.Public)
	if err != nil {
		t.Fatalf("DeriveDID: %v", err)
	}
	return did
}

func TestSubmitCreateDerivesIdentifier(t *testing.T) {
	l := New(testGenesis)
	kp := testKeypair(t, 1)
	did := createDID(t, l, kp)

	details, err := l.Resolve(context.Background(), did)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", did, err)
	}
	if details["version"] != float64(1) {
		t.Fatalf("version = %v, want 1", details["version"])
	}
}

func TestSubmitRejectsDriftedPayload(t *testing.T) {
	l := New(testGenesis)
	kp := testKeypair(t, 1)
	did := createDID(t, l, kp)
	extra := testKeypair(t, 2)

	call := signedCall(t, kp, didop.AddKey,
		[]ledger.Arg{
			{Name: "did_id", Bytes: []byte(did)},
			{Name: "public_key", Bytes: extra.Public},
			{Name: "roles", Roles: []string{"AssertionMethod"}},
		},
		didop.Bytes([]byte(did)),
		didop.Bytes(extra.Public),
		didop.Roles(didop.RoleAssertionMethod),
	)
	// Flip the role set after signing. The ledger rebuilds the payload from
	// the submitted arguments, so the signature no longer matches.
	call.Args[2].Roles = []string{"Authentication"}

	receipt, err := l.Submit(context.Background(), call)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("drifted payload accepted")
	}
	if !strings.Contains(receipt.Error, "signature") {
		t.Fatalf("receipt error = %q, want signature failure", receipt.Error)
	}
}

func TestSubmitMissingArgument(t *testing.T) {
	l := New(testGenesis)
	kp := testKeypair(t, 1)
	did := createDID(t, l, kp)

	call := signedCall(t, kp, didop.SetMetadata,
		[]ledger.Arg{{Name: "did_id", Bytes: []byte(did)}},
		didop.Bytes([]byte(did)), didop.Bytes([]byte("k")), didop.Bytes([]byte("v")))

	receipt, err := l.Submit(context.Background(), call)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("call with missing argument accepted")
	}
	if !strings.Contains(receipt.Error, "missing argument") {
		t.Fatalf("receipt error = %q", receipt.Error)
	}
}

func TestSubmitUnknownOperation(t *testing.T) {
	l := New(testGenesis)
	receipt, err := l.Submit(context.Background(), ledger.Call{Op: didop.Op("Bogus")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("unknown operation accepted")
	}
}

func TestDuplicateCreateRejected(t *testing.T) {
	l := New(testGenesis)
	kp := testKeypair(t, 1)
	createDID(t, l, kp)

	call := signedCall(t, kp, didop.CreateIdentity,
		[]ledger.Arg{{Name: "public_key", Bytes: kp.Public}},
		didop.Bytes(kp.Public))
	receipt, err := l.Submit(context.Background(), call)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("duplicate creation accepted")
	}
}

func TestRevokedKeyCannotSign(t *testing.T) {
	l := New(testGenesis)
	ctx := context.Background()
	kp := testKeypair(t, 1)
	did := createDID(t, l, kp)
	next := testKeypair(t, 2)

	rotate := signedCall(t, kp, didop.RotateKey,
		[]ledger.Arg{
			{Name: "did_id", Bytes: []byte(did)},
			{Name: "old_public_key", Bytes: kp.Public},
			{Name: "new_public_key", Bytes: next.Public},
			{Name: "roles", Roles: []string{"Authentication"}},
		},
		didop.Bytes([]byte(did)), didop.Bytes(kp.Public), didop.Bytes(next.Public),
		didop.Roles(didop.RoleAuthentication))
	receipt, err := l.Submit(ctx, rotate)
	if err != nil || !receipt.Success {
		t.Fatalf("rotate: err=%v receipt=%+v", err, receipt)
	}

	// The rotated-out key must no longer control the DID.
	stale := signedCall(t, kp, didop.SetMetadata,
		[]ledger.Arg{
			{Name: "did_id", Bytes: []byte(did)},
			{Name: "key", Bytes: []byte("k")},
			{Name: "value", Bytes: []byte("v")},
		},
		didop.Bytes([]byte(did)), didop.Bytes([]byte("k")), didop.Bytes([]byte("v")))
	receipt, err = l.Submit(ctx, stale)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("revoked key still controls the DID")
	}

	fresh := signedCall(t, next, didop.SetMetadata,
		[]ledger.Arg{
			{Name: "did_id", Bytes: []byte(did)},
			{Name: "key", Bytes: []byte("k")},
			{Name: "value", Bytes: []byte("v")},
		},
		didop.Bytes([]byte(did)), didop.Bytes([]byte("k")), didop.Bytes([]byte("v")))
	receipt, err = l.Submit(ctx, fresh)
	if err != nil || !receipt.Success {
		t.Fatalf("new key rejected: err=%v receipt=%+v", err, receipt)
	}
}

func TestSchemaDeprecateIssuerMismatch(t *testing.T) {
	l := New(testGenesis)
	ctx := context.Background()
	issuer := testKeypair(t, 1)
	issuerDID := createDID(t, l, issuer)
	other := testKeypair(t, 2)
	otherDID := createDID(t, l, other)

	schemaJSON := []byte(`{"name":"example","version":"1.0"}`)
	register := signedCall(t, issuer, didop.RegisterSchema,
		[]ledger.Arg{
			{Name: "schema_json", Bytes: schemaJSON},
			{Name: "schema_uri", Bytes: []byte("ipfs://x")},
			{Name: "issuer_did", Bytes: []byte(issuerDID)},
		},
		didop.Bytes(schemaJSON))
	receipt, err := l.Submit(ctx, register)
	if err != nil || !receipt.Success {
		t.Fatalf("register: err=%v receipt=%+v", err, receipt)
	}
	schemaID, err := ident.DeriveSchemaID(testGenesis, schemaJSON)
	if err != nil {
		t.Fatalf("DeriveSchemaID: %v", err)
	}

	deprecate := signedCall(t, other, didop.RegisterSchema,
		[]ledger.Arg{
			{Name: "schema_id", Bytes: []byte(schemaID)},
			{Name: "issuer_did", Bytes: []byte(otherDID)},
		},
		didop.Bytes(schemaJSON))
	deprecate.Op = ledger.OpDeprecateSchema
	receipt, err = l.Submit(ctx, deprecate)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Success {
		t.Fatal("deprecation by non-issuer accepted")
	}
}

func TestVersionIncrementsPerOperation(t *testing.T) {
	l := New(testGenesis)
	ctx := context.Background()
	kp := testKeypair(t, 1)
	did := createDID(t, l, kp)

	for i, kv := range []string{"a", "b", "c"} {
		call := signedCall(t, kp, didop.SetMetadata,
			[]ledger.Arg{
				{Name: "did_id", Bytes: []byte(did)},
				{Name: "key", Bytes: []byte(kv)},
				{Name: "value", Bytes: []byte(kv)},
			},
			didop.Bytes([]byte(did)), didop.Bytes([]byte(kv)), didop.Bytes([]byte(kv)))
		receipt, err := l.Submit(ctx, call)
		if err != nil || !receipt.Success {
			t.Fatalf("op %d: err=%v receipt=%+v", i, err, receipt)
		}
	}

	details, err := l.Resolve(ctx, did)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if details["version"] != float64(4) {
		t.Fatalf("version = %v, want 4", details["version"])
	}
}
