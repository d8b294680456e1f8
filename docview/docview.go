// Package docview renders resolved ledger details as a W3C DID document.
//
// This is presentation logic: it decodes best-effort and never participates
// in signing or identifier derivation.
package docview

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Document is the display form of a resolved DID.
type Document struct {
	Context              []string             `json:"@context"`
	ID                   string               `json:"id"`
	Version              uint64               `json:"version"`
	Deactivated          bool                 `json:"deactivated"`
	VerificationMethod   []VerificationMethod `json:"verificationMethod"`
	Authentication       []string             `json:"authentication"`
	AssertionMethod      []string             `json:"assertionMethod"`
	KeyAgreement         []string             `json:"keyAgreement"`
	CapabilityInvocation []string             `json:"capabilityInvocation"`
	CapabilityDelegation []string             `json:"capabilityDelegation"`
	Service              []Service            `json:"service"`
	Metadata             []Metadata           `json:"metadata"`
}

// VerificationMethod is one DID key in display form.
type VerificationMethod struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Controller         string   `json:"controller"`
	PublicKeyMultibase string   `json:"publicKeyMultibase"`
	Revoked            bool     `json:"revoked"`
	Roles              []string `json:"roles"`
}

// Service is one DID service endpoint in display form.
type Service struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type"`
	Endpoint    string `json:"endpoint"`
}

// Metadata is one DID metadata entry in display form.
type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var roleRelationship = map[string]string{
	"Authentication":       "authentication",
	"AssertionMethod":      "assertionMethod",
	"KeyAgreement":         "keyAgreement",
	"CapabilityInvocation": "capabilityInvocation",
	"CapabilityDelegation": "capabilityDelegation",
}

// FromDetails converts raw resolve output into a Document. Unknown roles and
// missing fields are tolerated; a document with no keys is still rendered.
func FromDetails(did string, details map[string]any) (Document, error) {
	if details == nil {
		return Document{}, errors.New("docview: nil details")
	}
	doc := Document{
		Context:              []string{"https://www.w3.org/ns/did/v1"},
		ID:                   did,
		Version:              asUint64(details["version"]),
		Deactivated:          asBool(details["deactivated"]),
		VerificationMethod:   []VerificationMethod{},
		Authentication:       []string{},
		AssertionMethod:      []string{},
		KeyAgreement:         []string{},
		CapabilityInvocation: []string{},
		CapabilityDelegation: []string{},
		Service:              []Service{},
		Metadata:             []Metadata{},
	}

	for i, raw := range asList(details["keys"]) {
		km, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		keyID := fmt.Sprintf("%s#keys-%d", did, i+1)
		pub, err := hex.DecodeString(asString(km["public_key_hex"]))
		if err != nil {
			return Document{}, fmt.Errorf("docview: key %d: bad public key hex: %w", i+1, err)
		}
		roles := asStringList(km["roles"])
		doc.VerificationMethod = append(doc.VerificationMethod, VerificationMethod{
			ID:                 keyID,
			Type:               "ML-DSA-44",
			Controller:         did,
			PublicKeyMultibase: "z" + base58.Encode(pub),
			Revoked:            asBool(km["revoked"]),
			Roles:              roles,
		})
		for _, role := range roles {
			switch roleRelationship[role] {
			case "authentication":
				doc.Authentication = append(doc.Authentication, keyID)
			case "assertionMethod":
				doc.AssertionMethod = append(doc.AssertionMethod, keyID)
			case "keyAgreement":
				doc.KeyAgreement = append(doc.KeyAgreement, keyID)
			case "capabilityInvocation":
				doc.CapabilityInvocation = append(doc.CapabilityInvocation, keyID)
			case "capabilityDelegation":
				doc.CapabilityDelegation = append(doc.CapabilityDelegation, keyID)
			}
		}
	}

	for _, raw := range asList(details["services"]) {
		sm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		doc.Service = append(doc.Service, Service{
			ID:          asString(sm["id"]),
			ServiceType: asString(sm["service_type"]),
			Endpoint:    asString(sm["endpoint"]),
		})
	}

	for _, raw := range asList(details["metadata"]) {
		mm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		doc.Metadata = append(doc.Metadata, Metadata{
			Key:   asString(mm["key"]),
			Value: asString(mm["value"]),
		})
	}
	return doc, nil
}

// Resolve details arrive as decoded JSON/structpb values, so numbers may be
// float64 and lists []any.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case uint64:
		return n
	case int:
		if n < 0 {
			return 0
		}
		return uint64(n)
	default:
		return 0
	}
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asStringList(v any) []string {
	raw := asList(v)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
