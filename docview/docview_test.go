package docview

import (
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
)

func sampleDetails() map[string]any {
	return map[string]any{
		"version":     float64(3),
		"deactivated": false,
		"keys": []any{
			map[string]any{
				"public_key_hex": hex.EncodeToString([]byte{1, 2, 3, 4}),
				"roles":          []any{"Authentication", "AssertionMethod"},
				"revoked":        false,
			},
			map[string]any{
				"public_key_hex": hex.EncodeToString([]byte{5, 6, 7, 8}),
				"roles":          []any{"CapabilityDelegation"},
				"revoked":        true,
			},
		},
		"services": []any{
			map[string]any{"id": "service-1", "service_type": "ExampleService", "endpoint": "https://example.com"},
		},
		"metadata": []any{
			map[string]any{"key": "profile", "value": "https://example.com/profile"},
		},
	}
}

func TestFromDetails_RendersDocument(t *testing.T) {
	doc, err := FromDetails("did:qsb:abc", sampleDetails())
	if err != nil {
		t.Fatalf("FromDetails: %v", err)
	}
	if doc.ID != "did:qsb:abc" {
		t.Fatalf("id = %q", doc.ID)
	}
	if doc.Version != 3 {
		t.Fatalf("version = %d", doc.Version)
	}
	if len(doc.VerificationMethod) != 2 {
		t.Fatalf("expected 2 verification methods, got %d", len(doc.VerificationMethod))
	}

	vm := doc.VerificationMethod[0]
	if vm.ID != "did:qsb:abc#keys-1" {
		t.Fatalf("key id = %q", vm.ID)
	}
	if vm.Type != "ML-DSA-44" {
		t.Fatalf("key type = %q", vm.Type)
	}
	want := "z" + base58.Encode([]byte{1, 2, 3, 4})
	if vm.PublicKeyMultibase != want {
		t.Fatalf("multibase = %q, want %q", vm.PublicKeyMultibase, want)
	}

	if len(doc.Authentication) != 1 || doc.Authentication[0] != "did:qsb:abc#keys-1" {
		t.Fatalf("authentication = %v", doc.Authentication)
	}
	if len(doc.AssertionMethod) != 1 {
		t.Fatalf("assertionMethod = %v", doc.AssertionMethod)
	}
	if len(doc.CapabilityDelegation) != 1 || doc.CapabilityDelegation[0] != "did:qsb:abc#keys-2" {
		t.Fatalf("capabilityDelegation = %v", doc.CapabilityDelegation)
	}
	if !doc.VerificationMethod[1].Revoked {
		t.Fatalf("second key should be revoked")
	}

	if len(doc.Service) != 1 || doc.Service[0].Endpoint != "https://example.com" {
		t.Fatalf("service = %v", doc.Service)
	}
	if len(doc.Metadata) != 1 || doc.Metadata[0].Key != "profile" {
		t.Fatalf("metadata = %v", doc.Metadata)
	}
}

func TestFromDetails_EmptyDetails(t *testing.T) {
	doc, err := FromDetails("did:qsb:abc", map[string]any{})
	if err != nil {
		t.Fatalf("FromDetails: %v", err)
	}
	if len(doc.VerificationMethod) != 0 || len(doc.Service) != 0 {
		t.Fatalf("expected empty document sections")
	}
	if doc.Context[0] != "https://www.w3.org/ns/did/v1" {
		t.Fatalf("context = %v", doc.Context)
	}
}

func TestFromDetails_BadKeyHex(t *testing.T) {
	details := map[string]any{
		"keys": []any{map[string]any{"public_key_hex": "zz"}},
	}
	if _, err := FromDetails("did:qsb:abc", details); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}

func TestFromDetails_UnknownRoleIgnored(t *testing.T) {
	details := map[string]any{
		"keys": []any{map[string]any{
			"public_key_hex": "0102",
			"roles":          []any{"Czar"},
		}},
	}
	doc, err := FromDetails("did:qsb:abc", details)
	if err != nil {
		t.Fatalf("FromDetails: %v", err)
	}
	if len(doc.Authentication)+len(doc.AssertionMethod)+len(doc.KeyAgreement)+
		len(doc.CapabilityInvocation)+len(doc.CapabilityDelegation) != 0 {
		t.Fatalf("unknown role mapped to a relationship")
	}
	if len(doc.VerificationMethod) != 1 {
		t.Fatalf("verification method should still render")
	}
}
