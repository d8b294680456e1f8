// Package didop defines the QSB operation catalog and builds the exact byte
// sequences that identity-level signatures cover.
//
// Every operation kind has a unique domain-separation prefix and an ordered
// field list. The prefix plus the field order plus the compact encoding form
// a wire contract: independent client implementations must produce
// bit-identical payloads for the same arguments, or the ledger will reject
// their signatures. Prefixes are never reused for a different argument
// shape, even across protocol versions.
package didop

// Op identifies one supported operation kind.
type Op string

const (
	CreateIdentity     Op = "CreateIdentity"
	AddKey             Op = "AddKey"
	UpdateRoles        Op = "UpdateRoles"
	RotateKey          Op = "RotateKey"
	SetMetadata        Op = "SetMetadata"
	RemoveMetadata     Op = "RemoveMetadata"
	AddService         Op = "AddService"
	RemoveService      Op = "RemoveService"
	RevokeKey          Op = "RevokeKey"
	DeactivateIdentity Op = "DeactivateIdentity"

	// RegisterSchema lives in the schema namespace rather than the DID
	// namespace; its payload is the prefix followed by the raw schema JSON
	// with no length prefix.
	RegisterSchema Op = "RegisterSchema"
)

// FieldKind selects how one argument is folded into the signed payload.
type FieldKind int

const (
	// FieldBytes is a byte-string encoded as compact length || bytes.
	FieldBytes FieldKind = iota
	// FieldRoleSet is a role list encoded as compact count || one index
	// byte per role.
	FieldRoleSet
	// FieldRaw is a byte-string appended verbatim, with no length prefix.
	FieldRaw
)

// FieldSpec names one argument of an operation and how it is encoded.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// Descriptor is one immutable catalog entry.
//
// Pallet and Call name the ledger-side dispatchable the transport wraps the
// signed arguments into; they do not participate in the signed payload.
type Descriptor struct {
	Op     Op
	Prefix string
	Pallet string
	Call   string
	Fields []FieldSpec
}

// catalog is the static operation table. Field order is load-bearing:
// swapping two fields produces a valid-looking payload that verifies against
// the wrong arguments.
var catalog = map[Op]Descriptor{
	CreateIdentity: {
		Op: CreateIdentity, Prefix: "QSB_DID_CREATE", Pallet: "Did", Call: "create_did",
		Fields: []FieldSpec{
			{Name: "public_key", Kind: FieldBytes},
		},
	},
	AddKey: {
		Op: AddKey, Prefix: "QSB_DID_ADD_KEY", Pallet: "Did", Call: "add_key",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "public_key", Kind: FieldBytes},
			{Name: "roles", Kind: FieldRoleSet},
		},
	},
	UpdateRoles: {
		Op: UpdateRoles, Prefix: "QSB_DID_UPDATE_ROLES", Pallet: "Did", Call: "update_roles",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "public_key", Kind: FieldBytes},
			{Name: "roles", Kind: FieldRoleSet},
		},
	},
	RotateKey: {
		Op: RotateKey, Prefix: "QSB_DID_ROTATE_KEY", Pallet: "Did", Call: "rotate_key",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "old_public_key", Kind: FieldBytes},
			{Name: "new_public_key", Kind: FieldBytes},
			{Name: "roles", Kind: FieldRoleSet},
		},
	},
	SetMetadata: {
		Op: SetMetadata, Prefix: "QSB_DID_SET_METADATA", Pallet: "Did", Call: "set_metadata",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "key", Kind: FieldBytes},
			{Name: "value", Kind: FieldBytes},
		},
	},
	RemoveMetadata: {
		Op: RemoveMetadata, Prefix: "QSB_DID_REMOVE_METADATA", Pallet: "Did", Call: "remove_metadata",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "key", Kind: FieldBytes},
		},
	},
	AddService: {
		Op: AddService, Prefix: "QSB_DID_ADD_SERVICE", Pallet: "Did", Call: "add_service",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "service_id", Kind: FieldBytes},
			{Name: "service_type", Kind: FieldBytes},
			{Name: "endpoint", Kind: FieldBytes},
		},
	},
	RemoveService: {
		Op: RemoveService, Prefix: "QSB_DID_REMOVE_SERVICE", Pallet: "Did", Call: "remove_service",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "service_id", Kind: FieldBytes},
		},
	},
	RevokeKey: {
		Op: RevokeKey, Prefix: "QSB_DID_REVOKE_KEY", Pallet: "Did", Call: "revoke_key",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
			{Name: "public_key", Kind: FieldBytes},
		},
	},
	DeactivateIdentity: {
		Op: DeactivateIdentity, Prefix: "QSB_DID_DEACTIVATE", Pallet: "Did", Call: "deactivate_did",
		Fields: []FieldSpec{
			{Name: "did_id", Kind: FieldBytes},
		},
	},
	RegisterSchema: {
		Op: RegisterSchema, Prefix: "QSB_SCHEMA", Pallet: "Schema", Call: "register_schema",
		Fields: []FieldSpec{
			{Name: "schema_json", Kind: FieldRaw},
		},
	},
}

// catalogOrder fixes the iteration order for Descriptors.
var catalogOrder = []Op{
	CreateIdentity,
	AddKey,
	UpdateRoles,
	RotateKey,
	SetMetadata,
	RemoveMetadata,
	AddService,
	RemoveService,
	RevokeKey,
	DeactivateIdentity,
	RegisterSchema,
}

// Lookup returns the catalog entry for op.
func Lookup(op Op) (Descriptor, bool) {
	d, ok := catalog[op]
	return d, ok
}

// Descriptors returns all catalog entries in a fixed order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(catalogOrder))
	for _, op := range catalogOrder {
		out = append(out, catalog[op])
	}
	return out
}
