// Package memledger is an in-memory identity/schema registry implementing
// ledger.Gateway.
//
// It backs the demo gateway daemon and end-to-end tests. Submitted calls are
// verified the way the real ledger verifies them: the signed payload is
// rebuilt independently from the submitted argument values via the operation
// catalog, and the ML-DSA signature is checked against it. A client whose
// payload encoding drifts by a single bit fails here exactly as it would
// on-chain.
package memledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/ident"
	"qsb.qbck.io/did/keys"
	"qsb.qbck.io/did/ledger"
)

const defaultBalance = 1_000_000_000_000

type keyRecord struct {
	public  []byte
	roles   []string
	revoked bool
}

type serviceRecord struct {
	id, typ, endpoint []byte
}

type metadataRecord struct {
	key, value []byte
}

type didRecord struct {
	keys        []*keyRecord
	services    []serviceRecord
	metadata    []metadataRecord
	version     uint64
	deactivated bool
}

type schemaRecord struct {
	json       []byte
	uri        []byte
	issuerDID  string
	deprecated bool
}

// Ledger is a single-process registry. All methods are safe for concurrent
// use.
type Ledger struct {
	mu       sync.Mutex
	genesis  []byte
	balances map[string]uint64
	dids     map[string]*didRecord
	schemas  map[string]*schemaRecord
	seq      uint64
}

var _ ledger.Gateway = (*Ledger)(nil)

// New returns an empty ledger with the given genesis hash.
func New(genesis []byte) *Ledger {
	return &Ledger{
		genesis:  append([]byte(nil), genesis...),
		balances: map[string]uint64{},
		dids:     map[string]*didRecord{},
		schemas:  map[string]*schemaRecord{},
	}
}

func (l *Ledger) GenesisHash(ctx context.Context) ([]byte, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.genesis...), nil
}

func (l *Ledger) FreeBalance(ctx context.Context, account string) (uint64, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[account]; ok {
		return balance, nil
	}
	// Demo chain: unknown accounts start funded.
	return defaultBalance, nil
}

// SetBalance pins the free balance of an account (test hook).
func (l *Ledger) SetBalance(account string, balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = balance
}

func (l *Ledger) Submit(ctx context.Context, call ledger.Call) (ledger.Receipt, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	receipt := ledger.Receipt{
		ExtrinsicHash: l.extrinsicHash(call),
		BlockHash:     l.blockHash(),
		FinalizedHash: l.blockHash(),
	}

	event, err := l.apply(call)
	if err != nil {
		receipt.Success = false
		receipt.Error = err.Error()
		return receipt, nil
	}
	receipt.Success = true
	receipt.Events = []ledger.Event{event}
	return receipt, nil
}

func (l *Ledger) apply(call ledger.Call) (ledger.Event, error) {
	if call.Op == ledger.OpDeprecateSchema {
		return l.applyDeprecateSchema(call)
	}

	desc, ok := didop.Lookup(call.Op)
	if !ok {
		return ledger.Event{}, fmt.Errorf("unknown operation %q", call.Op)
	}

	payload, err := rebuildPayload(desc, call.Args)
	if err != nil {
		return ledger.Event{}, err
	}

	switch call.Op {
	case didop.CreateIdentity:
		return l.applyCreate(call, payload)
	case didop.RegisterSchema:
		return l.applyRegisterSchema(call, payload)
	default:
		return l.applyDIDOp(desc, call, payload)
	}
}

// rebuildPayload reconstructs the signed byte sequence from the submitted
// argument values. Transport-only arguments (not named in the descriptor)
// are ignored; they are not covered by the identity signature.
func rebuildPayload(desc didop.Descriptor, args []ledger.Arg) ([]byte, error) {
	values := make([]didop.Value, 0, len(desc.Fields))
	for _, field := range desc.Fields {
		arg, ok := findArg(args, field.Name)
		if !ok {
			return nil, fmt.Errorf("missing argument %q", field.Name)
		}
		if field.Kind == didop.FieldRoleSet {
			roles, err := didop.ParseRoles(arg.Roles)
			if err != nil {
				return nil, err
			}
			values = append(values, didop.Roles(roles...))
		} else {
			values = append(values, didop.Bytes(arg.Bytes))
		}
	}
	return didop.Build(desc.Op, values...)
}

func findArg(args []ledger.Arg, name string) (ledger.Arg, bool) {
	for _, a := range args {
		if a.Name == name {
			return a, true
		}
	}
	return ledger.Arg{}, false
}

func (l *Ledger) applyCreate(call ledger.Call, payload []byte) (ledger.Event, error) {
	pubArg, ok := findArg(call.Args, "public_key")
	if !ok {
		return ledger.Event{}, fmt.Errorf("missing argument %q", "public_key")
	}
	// The creating key signs for itself.
	if err := verify(pubArg.Bytes, payload, call.Signature); err != nil {
		return ledger.Event{}, err
	}

	// The ledger computes the identifier independently; a client whose
	// derivation disagrees simply cannot find its own identity afterwards.
	did, err := ident.DeriveDID(l.genesis, pubArg.Bytes)
	if err != nil {
		return ledger.Event{}, err
	}
	if _, exists := l.dids[did]; exists {
		return ledger.Event{}, fmt.Errorf("did %s already exists", did)
	}
	l.dids[did] = &didRecord{
		keys: []*keyRecord{{
			public: append([]byte(nil), pubArg.Bytes...),
			roles:  []string{string(didop.RoleAuthentication)},
		}},
		version: 1,
	}
	return ledger.Event{Pallet: "Did", Name: "DidCreated", Params: map[string]string{"did": did}}, nil
}

func (l *Ledger) applyDIDOp(desc didop.Descriptor, call ledger.Call, payload []byte) (ledger.Event, error) {
	didArg, ok := findArg(call.Args, "did_id")
	if !ok {
		return ledger.Event{}, fmt.Errorf("missing argument %q", "did_id")
	}
	did := string(didArg.Bytes)
	rec, ok := l.dids[did]
	if !ok {
		return ledger.Event{}, fmt.Errorf("did %s not found", did)
	}
	if rec.deactivated {
		return ledger.Event{}, fmt.Errorf("did %s is deactivated", did)
	}
	if err := l.verifyController(rec, payload, call.Signature); err != nil {
		return ledger.Event{}, err
	}

	event := ledger.Event{Pallet: desc.Pallet, Params: map[string]string{"did": did}}
	switch desc.Op {
	case didop.AddKey:
		pub := mustBytes(call.Args, "public_key")
		if rec.findKey(pub) != nil {
			return ledger.Event{}, fmt.Errorf("key already present")
		}
		roles := mustRoles(call.Args, "roles")
		rec.keys = append(rec.keys, &keyRecord{public: append([]byte(nil), pub...), roles: roles})
		event.Name = "KeyAdded"
	case didop.UpdateRoles:
		key := rec.findKey(mustBytes(call.Args, "public_key"))
		if key == nil || key.revoked {
			return ledger.Event{}, fmt.Errorf("key not found")
		}
		key.roles = mustRoles(call.Args, "roles")
		event.Name = "RolesUpdated"
	case didop.RotateKey:
		old := rec.findKey(mustBytes(call.Args, "old_public_key"))
		if old == nil || old.revoked {
			return ledger.Event{}, fmt.Errorf("old key not found")
		}
		newPub := mustBytes(call.Args, "new_public_key")
		if rec.findKey(newPub) != nil {
			return ledger.Event{}, fmt.Errorf("new key already present")
		}
		old.revoked = true
		rec.keys = append(rec.keys, &keyRecord{
			public: append([]byte(nil), newPub...),
			roles:  mustRoles(call.Args, "roles"),
		})
		event.Name = "KeyRotated"
	case didop.SetMetadata:
		key := mustBytes(call.Args, "key")
		value := mustBytes(call.Args, "value")
		rec.setMetadata(key, value)
		event.Name = "MetadataSet"
	case didop.RemoveMetadata:
		if !rec.removeMetadata(mustBytes(call.Args, "key")) {
			return ledger.Event{}, fmt.Errorf("metadata key not found")
		}
		event.Name = "MetadataRemoved"
	case didop.AddService:
		id := mustBytes(call.Args, "service_id")
		if rec.findService(id) >= 0 {
			return ledger.Event{}, fmt.Errorf("service already present")
		}
		rec.services = append(rec.services, serviceRecord{
			id:       append([]byte(nil), id...),
			typ:      append([]byte(nil), mustBytes(call.Args, "service_type")...),
			endpoint: append([]byte(nil), mustBytes(call.Args, "endpoint")...),
		})
		event.Name = "ServiceAdded"
	case didop.RemoveService:
		idx := rec.findService(mustBytes(call.Args, "service_id"))
		if idx < 0 {
			return ledger.Event{}, fmt.Errorf("service not found")
		}
		rec.services = append(rec.services[:idx], rec.services[idx+1:]...)
		event.Name = "ServiceRemoved"
	case didop.RevokeKey:
		key := rec.findKey(mustBytes(call.Args, "public_key"))
		if key == nil || key.revoked {
			return ledger.Event{}, fmt.Errorf("key not found")
		}
		key.revoked = true
		event.Name = "KeyRevoked"
	case didop.DeactivateIdentity:
		rec.deactivated = true
		event.Name = "DidDeactivated"
	default:
		return ledger.Event{}, fmt.Errorf("unsupported operation %q", desc.Op)
	}
	rec.version++
	return event, nil
}

func (l *Ledger) applyRegisterSchema(call ledger.Call, payload []byte) (ledger.Event, error) {
	issuerArg, ok := findArg(call.Args, "issuer_did")
	if !ok {
		return ledger.Event{}, fmt.Errorf("missing argument %q", "issuer_did")
	}
	issuer := string(issuerArg.Bytes)
	rec, ok := l.dids[issuer]
	if !ok || rec.deactivated {
		return ledger.Event{}, fmt.Errorf("issuer did %s not found", issuer)
	}
	if err := l.verifyController(rec, payload, call.Signature); err != nil {
		return ledger.Event{}, err
	}

	schemaJSON := mustBytes(call.Args, "schema_json")
	// The ledger derives the schema identifier independently of the client.
	schemaID, err := ident.DeriveSchemaID(l.genesis, schemaJSON)
	if err != nil {
		return ledger.Event{}, err
	}
	if _, exists := l.schemas[schemaID]; exists {
		return ledger.Event{}, fmt.Errorf("schema %s already registered", schemaID)
	}
	uri := mustBytes(call.Args, "schema_uri")
	l.schemas[schemaID] = &schemaRecord{
		json:      append([]byte(nil), schemaJSON...),
		uri:       append([]byte(nil), uri...),
		issuerDID: issuer,
	}
	return ledger.Event{Pallet: "Schema", Name: "SchemaRegistered", Params: map[string]string{"schema_id": schemaID}}, nil
}

func (l *Ledger) applyDeprecateSchema(call ledger.Call) (ledger.Event, error) {
	idArg, ok := findArg(call.Args, "schema_id")
	if !ok {
		return ledger.Event{}, fmt.Errorf("missing argument %q", "schema_id")
	}
	schemaID := string(idArg.Bytes)
	schema, ok := l.schemas[schemaID]
	if !ok {
		return ledger.Event{}, fmt.Errorf("schema %s not found", schemaID)
	}
	issuerArg, ok := findArg(call.Args, "issuer_did")
	if !ok || string(issuerArg.Bytes) != schema.issuerDID {
		return ledger.Event{}, fmt.Errorf("issuer mismatch")
	}
	rec, ok := l.dids[schema.issuerDID]
	if !ok {
		return ledger.Event{}, fmt.Errorf("issuer did %s not found", schema.issuerDID)
	}

	// Deprecation reuses the registration signature; rebuild the original
	// registration payload from the stored schema bytes.
	payload, err := didop.Build(didop.RegisterSchema, didop.Bytes(schema.json))
	if err != nil {
		return ledger.Event{}, err
	}
	if err := l.verifyController(rec, payload, call.Signature); err != nil {
		return ledger.Event{}, err
	}
	if schema.deprecated {
		return ledger.Event{}, fmt.Errorf("schema %s already deprecated", schemaID)
	}
	schema.deprecated = true
	return ledger.Event{Pallet: "Schema", Name: "SchemaDeprecated", Params: map[string]string{"schema_id": schemaID}}, nil
}

// verifyController accepts a signature from any active key of the DID. The
// production chain enforces per-role authority on top of this; the demo
// ledger only enforces possession of an unrevoked key.
func (l *Ledger) verifyController(rec *didRecord, payload, signature []byte) error {
	for _, key := range rec.keys {
		if key.revoked {
			continue
		}
		ok, err := keys.Verify(key.public, payload, signature)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("signature does not verify under any active key")
}

func verify(public, payload, signature []byte) error {
	ok, err := keys.Verify(public, payload, signature)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

func (l *Ledger) Resolve(ctx context.Context, did string) (map[string]any, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.dids[did]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	keysOut := make([]any, 0, len(rec.keys))
	for _, key := range rec.keys {
		roles := make([]any, 0, len(key.roles))
		for _, r := range key.roles {
			roles = append(roles, r)
		}
		keysOut = append(keysOut, map[string]any{
			"public_key_hex": hex.EncodeToString(key.public),
			"roles":          roles,
			"revoked":        key.revoked,
		})
	}
	servicesOut := make([]any, 0, len(rec.services))
	for _, svc := range rec.services {
		servicesOut = append(servicesOut, map[string]any{
			"id":           string(svc.id),
			"service_type": string(svc.typ),
			"endpoint":     string(svc.endpoint),
		})
	}
	metadataOut := make([]any, 0, len(rec.metadata))
	for _, entry := range rec.metadata {
		metadataOut = append(metadataOut, map[string]any{
			"key":   string(entry.key),
			"value": string(entry.value),
		})
	}
	return map[string]any{
		"version":     float64(rec.version),
		"deactivated": rec.deactivated,
		"keys":        keysOut,
		"services":    servicesOut,
		"metadata":    metadataOut,
	}, nil
}

func (r *didRecord) findKey(public []byte) *keyRecord {
	for _, key := range r.keys {
		if bytes.Equal(key.public, public) {
			return key
		}
	}
	return nil
}

func (r *didRecord) findService(id []byte) int {
	for i, svc := range r.services {
		if bytes.Equal(svc.id, id) {
			return i
		}
	}
	return -1
}

func (r *didRecord) setMetadata(key, value []byte) {
	for i, entry := range r.metadata {
		if bytes.Equal(entry.key, key) {
			r.metadata[i].value = append([]byte(nil), value...)
			return
		}
	}
	r.metadata = append(r.metadata, metadataRecord{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (r *didRecord) removeMetadata(key []byte) bool {
	for i, entry := range r.metadata {
		if bytes.Equal(entry.key, key) {
			r.metadata = append(r.metadata[:i], r.metadata[i+1:]...)
			return true
		}
	}
	return false
}

func mustBytes(args []ledger.Arg, name string) []byte {
	arg, _ := findArg(args, name)
	return arg.Bytes
}

func mustRoles(args []ledger.Arg, name string) []string {
	arg, _ := findArg(args, name)
	return append([]string(nil), arg.Roles...)
}

func (l *Ledger) extrinsicHash(call ledger.Call) string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(call.Op))
	_, _ = h.Write(call.Signature)
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], l.seq)
	_, _ = h.Write(seq[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func (l *Ledger) blockHash() string {
	h, _ := blake2b.New256(nil)
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], l.seq)
	_, _ = h.Write(seq[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
