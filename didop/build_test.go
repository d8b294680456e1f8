package didop

import (
	"bytes"
	"testing"
)

func TestBuild_CreateIdentity_FixedVector(t *testing.T) {
	// Cross-implementation vector: a 32-byte all-zero public key must
	// produce exactly "QSB_DID_CREATE" || compact(32) || zeros.
	pk := make([]byte, 32)
	got, err := Build(CreateIdentity, Bytes(pk))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := append([]byte("QSB_DID_CREATE"), 0x80)
	want = append(want, pk...)
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	args := []Value{
		Text("did:qsb:abc"),
		Bytes([]byte{1, 2, 3}),
		Roles(RoleAssertionMethod, RoleAuthentication),
	}
	a, err := Build(AddKey, args...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(AddKey, args...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("Build is not deterministic")
	}
}

func TestBuild_AddKey_FieldOrderAndRoles(t *testing.T) {
	did := []byte("did:qsb:x")
	pk := []byte{0xAA, 0xBB}
	got, err := Build(AddKey, Bytes(did), Bytes(pk), Roles(RoleAssertionMethod))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var want []byte
	want = append(want, []byte("QSB_DID_ADD_KEY")...)
	want = append(want, byte(len(did))<<2)
	want = append(want, did...)
	want = append(want, byte(len(pk))<<2)
	want = append(want, pk...)
	want = append(want, 0x04) // compact(1)
	want = append(want, 1)    // AssertionMethod index
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestBuild_RegisterSchema_RawConcatenation(t *testing.T) {
	schema := []byte(`{"name":"example","version":"1.0"}`)
	got, err := Build(RegisterSchema, Bytes(schema))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Schema payloads carry the raw JSON with no length prefix.
	want := append([]byte("QSB_SCHEMA"), schema...)
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestBuild_EmptyRoleSet(t *testing.T) {
	got, err := Build(UpdateRoles, Text("did:qsb:x"), Bytes([]byte{1}), Roles())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got[len(got)-1] != 0x00 {
		t.Fatalf("empty role set must end with compact(0), got %x", got[len(got)-1])
	}
}

func TestBuild_UnknownOp(t *testing.T) {
	_, err := Build(Op("Bogus"), Bytes(nil))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindCatalog) {
		t.Fatalf("expected KindCatalog, got %v", err)
	}
	if RuleID(err) != "QSB-OP-001" {
		t.Fatalf("expected QSB-OP-001, got %s", RuleID(err))
	}
}

func TestBuild_ArityMismatch(t *testing.T) {
	_, err := Build(CreateIdentity)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindArity) {
		t.Fatalf("expected KindArity, got %v", err)
	}
	if RuleID(err) != "QSB-OP-002" {
		t.Fatalf("expected QSB-OP-002, got %s", RuleID(err))
	}
}

func TestBuild_ShapeMismatch(t *testing.T) {
	// A role set where a byte-string is declared.
	_, err := Build(CreateIdentity, Roles(RoleAuthentication))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindArity) || RuleID(err) != "QSB-OP-003" {
		t.Fatalf("expected QSB-OP-003 arity error, got %v (%s)", err, RuleID(err))
	}

	// A byte-string where a role set is declared.
	_, err = Build(AddKey, Text("did:qsb:x"), Bytes([]byte{1}), Bytes([]byte{2}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindArity) || RuleID(err) != "QSB-OP-003" {
		t.Fatalf("expected QSB-OP-003 arity error, got %v (%s)", err, RuleID(err))
	}
}

func TestBuild_UnknownRole(t *testing.T) {
	_, err := Build(AddKey, Text("did:qsb:x"), Bytes([]byte{1}), Roles(Role("Czar")))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindRole) {
		t.Fatalf("expected KindRole, got %v", err)
	}
}

func TestCatalog_PrefixesUnique(t *testing.T) {
	seen := map[string]Op{}
	for _, d := range Descriptors() {
		if prior, ok := seen[d.Prefix]; ok {
			t.Fatalf("prefix %q shared by %s and %s", d.Prefix, prior, d.Op)
		}
		seen[d.Prefix] = d.Op
	}
	if len(seen) != 11 {
		t.Fatalf("expected 11 catalog entries, got %d", len(seen))
	}
}

func TestRoleIndices_Fixed(t *testing.T) {
	want := map[Role]byte{
		RoleAuthentication:       0,
		RoleAssertionMethod:      1,
		RoleKeyAgreement:         2,
		RoleCapabilityInvocation: 3,
		RoleCapabilityDelegation: 4,
	}
	for r, idx := range want {
		got, err := r.Index()
		if err != nil {
			t.Fatalf("Index(%s): %v", r, err)
		}
		if got != idx {
			t.Fatalf("Index(%s) = %d, want %d", r, got, idx)
		}
	}
	if _, err := ParseRole("NotARole"); err == nil {
		t.Fatalf("expected error for unknown role tag")
	}
}
