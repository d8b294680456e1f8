// Package client orchestrates QSB identity operations: it feeds argument
// values into the payload builder, signs the result with the stored identity
// key, and hands the signed call to the ledger gateway.
//
// The client never retries a submission and never invents freshness; any
// nonce a schema needs is embedded into the schema JSON before signing.
package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/docview"
	"qsb.qbck.io/did/ident"
	"qsb.qbck.io/did/keys"
	"qsb.qbck.io/did/keystore"
	"qsb.qbck.io/did/ledger"
	"qsb.qbck.io/did/schemaarchive"
)

// Identity is a loaded holder identity. The private key inside Keypair is a
// secret owned by the caller for one process run; Zero it when done.
type Identity struct {
	DID     string
	Keypair keys.Keypair
}

// Client drives signed operations against one identity ledger.
//
// Archive is optional; when set, every registered schema is archived
// locally before submission.
type Client struct {
	Gateway ledger.Gateway
	Store   *keystore.Store
	Archive *schemaarchive.Archive
}

// LoadIdentity decrypts the stored identity. Returns keystore.ErrNotFound on
// first run and keystore.ErrDecryptFailed for a wrong password or corrupted
// store; callers must not conflate the two.
func (c *Client) LoadIdentity(password string) (Identity, error) {
	did, kp, err := c.Store.Load(password)
	if err != nil {
		return Identity{}, err
	}
	return Identity{DID: did, Keypair: kp}, nil
}

// CreateIdentity generates a fresh ML-DSA-44 keypair, derives its DID from
// the chain genesis hash, submits the creation operation, and persists the
// keypair encrypted under password. The keypair is saved only after the
// ledger reports success; a failed creation leaves no local state behind.
func (c *Client) CreateIdentity(ctx context.Context, password string) (Identity, ledger.Receipt, error) {
	genesis, err := c.Gateway.GenesisHash(ctx)
	if err != nil {
		return Identity{}, ledger.Receipt{}, fmt.Errorf("client: genesis hash: %w", err)
	}
	kp, err := keys.Generate(rand.Reader)
	if err != nil {
		return Identity{}, ledger.Receipt{}, err
	}
	did, err := ident.DeriveDID(genesis, kp.Public)
	if err != nil {
		return Identity{}, ledger.Receipt{}, err
	}

	payload, err := didop.Build(didop.CreateIdentity, didop.Bytes(kp.Public))
	if err != nil {
		return Identity{}, ledger.Receipt{}, err
	}
	sig, err := keys.Sign(kp.Private, payload)
	if err != nil {
		return Identity{}, ledger.Receipt{}, err
	}

	receipt, err := c.Gateway.Submit(ctx, ledger.Call{
		Op:        didop.CreateIdentity,
		Args:      []ledger.Arg{{Name: "public_key", Bytes: kp.Public}},
		Signature: sig,
	})
	if err != nil {
		return Identity{}, receipt, err
	}
	if !receipt.Success {
		return Identity{}, receipt, fmt.Errorf("client: identity creation rejected: %s", receipt.Error)
	}
	if err := c.Store.Save(did, kp, password); err != nil {
		return Identity{}, receipt, err
	}
	return Identity{DID: did, Keypair: kp}, receipt, nil
}

// LoadOrCreateIdentity loads the stored identity, creating one on first run.
// The created flag reports which path was taken.
func (c *Client) LoadOrCreateIdentity(ctx context.Context, password string) (id Identity, created bool, receipt ledger.Receipt, err error) {
	id, err = c.LoadIdentity(password)
	if err == nil {
		return id, false, ledger.Receipt{}, nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		return Identity{}, false, ledger.Receipt{}, err
	}
	id, receipt, err = c.CreateIdentity(ctx, password)
	return id, true, receipt, err
}

// field is one signed argument in catalog order.
type field struct {
	name  string
	bytes []byte
	roles []didop.Role
}

// submit builds the payload from fields in order, signs it with the
// identity's private key, and submits fields plus any transport-only extras.
func (c *Client) submit(ctx context.Context, id Identity, op didop.Op, fields []field, extra ...ledger.Arg) (ledger.Receipt, error) {
	values := make([]didop.Value, 0, len(fields))
	args := make([]ledger.Arg, 0, len(fields)+len(extra))
	for _, f := range fields {
		if f.roles != nil {
			values = append(values, didop.Roles(f.roles...))
			args = append(args, ledger.Arg{Name: f.name, Roles: roleStrings(f.roles)})
		} else {
			values = append(values, didop.Bytes(f.bytes))
			args = append(args, ledger.Arg{Name: f.name, Bytes: f.bytes})
		}
	}
	payload, err := didop.Build(op, values...)
	if err != nil {
		return ledger.Receipt{}, err
	}
	sig, err := keys.Sign(id.Keypair.Private, payload)
	if err != nil {
		return ledger.Receipt{}, err
	}
	args = append(args, extra...)
	return c.Gateway.Submit(ctx, ledger.Call{Op: op, Args: args, Signature: sig})
}

// AddKey attaches an additional public key with the given roles to the DID.
func (c *Client) AddKey(ctx context.Context, id Identity, publicKey []byte, roles []didop.Role) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.AddKey, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "public_key", bytes: publicKey},
		{name: "roles", roles: roles},
	})
}

// UpdateRoles replaces the role set of an existing DID key.
func (c *Client) UpdateRoles(ctx context.Context, id Identity, publicKey []byte, roles []didop.Role) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.UpdateRoles, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "public_key", bytes: publicKey},
		{name: "roles", roles: roles},
	})
}

// RotateKey revokes oldPublicKey and registers newPublicKey with the given
// roles in one operation. The old key becomes immutable history on the
// ledger; nothing is edited in place.
func (c *Client) RotateKey(ctx context.Context, id Identity, oldPublicKey, newPublicKey []byte, roles []didop.Role) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.RotateKey, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "old_public_key", bytes: oldPublicKey},
		{name: "new_public_key", bytes: newPublicKey},
		{name: "roles", roles: roles},
	})
}

// SetMetadata writes one metadata entry on the DID.
func (c *Client) SetMetadata(ctx context.Context, id Identity, key, value []byte) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.SetMetadata, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "key", bytes: key},
		{name: "value", bytes: value},
	})
}

// RemoveMetadata deletes one metadata entry from the DID.
func (c *Client) RemoveMetadata(ctx context.Context, id Identity, key []byte) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.RemoveMetadata, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "key", bytes: key},
	})
}

// AddService attaches a service endpoint to the DID.
func (c *Client) AddService(ctx context.Context, id Identity, serviceID, serviceType, endpoint []byte) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.AddService, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "service_id", bytes: serviceID},
		{name: "service_type", bytes: serviceType},
		{name: "endpoint", bytes: endpoint},
	})
}

// RemoveService deletes a service endpoint from the DID.
func (c *Client) RemoveService(ctx context.Context, id Identity, serviceID []byte) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.RemoveService, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "service_id", bytes: serviceID},
	})
}

// RevokeKey marks a DID key as revoked.
func (c *Client) RevokeKey(ctx context.Context, id Identity, publicKey []byte) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.RevokeKey, []field{
		{name: "did_id", bytes: []byte(id.DID)},
		{name: "public_key", bytes: publicKey},
	})
}

// Deactivate permanently deactivates the DID.
func (c *Client) Deactivate(ctx context.Context, id Identity) (ledger.Receipt, error) {
	return c.submit(ctx, id, didop.DeactivateIdentity, []field{
		{name: "did_id", bytes: []byte(id.DID)},
	})
}

// RegisterSchema signs and submits schema JSON, returning the derived schema
// identifier. The exact signed bytes are archived locally first when an
// archive is configured.
func (c *Client) RegisterSchema(ctx context.Context, id Identity, schemaJSON, schemaURI []byte) (string, ledger.Receipt, error) {
	genesis, err := c.Gateway.GenesisHash(ctx)
	if err != nil {
		return "", ledger.Receipt{}, fmt.Errorf("client: genesis hash: %w", err)
	}
	schemaID, err := ident.DeriveSchemaID(genesis, schemaJSON)
	if err != nil {
		return "", ledger.Receipt{}, err
	}
	if c.Archive != nil {
		if _, err := c.Archive.Put(schemaJSON); err != nil {
			return "", ledger.Receipt{}, fmt.Errorf("client: archive schema: %w", err)
		}
	}
	receipt, err := c.submit(ctx, id, didop.RegisterSchema,
		[]field{{name: "schema_json", bytes: schemaJSON}},
		ledger.Arg{Name: "schema_uri", Bytes: schemaURI},
		ledger.Arg{Name: "issuer_did", Bytes: []byte(id.DID)},
	)
	return schemaID, receipt, err
}

// DeprecateSchema marks a registered schema as deprecated. The call carries
// the registration signature re-created over the original schema JSON; there
// is no separate deprecation payload.
func (c *Client) DeprecateSchema(ctx context.Context, id Identity, schemaID string, schemaJSON []byte) (ledger.Receipt, error) {
	payload, err := didop.Build(didop.RegisterSchema, didop.Bytes(schemaJSON))
	if err != nil {
		return ledger.Receipt{}, err
	}
	sig, err := keys.Sign(id.Keypair.Private, payload)
	if err != nil {
		return ledger.Receipt{}, err
	}
	return c.Gateway.Submit(ctx, ledger.Call{
		Op: ledger.OpDeprecateSchema,
		Args: []ledger.Arg{
			{Name: "schema_id", Bytes: []byte(schemaID)},
			{Name: "issuer_did", Bytes: []byte(id.DID)},
		},
		Signature: sig,
	})
}

// Resolve fetches the on-ledger details for a DID and renders them as a DID
// document.
func (c *Client) Resolve(ctx context.Context, did string) (docview.Document, error) {
	details, err := c.Gateway.Resolve(ctx, did)
	if err != nil {
		return docview.Document{}, err
	}
	return docview.FromDetails(did, details)
}

// FreeBalance reports the free balance of a transport-level account.
func (c *Client) FreeBalance(ctx context.Context, account string) (uint64, error) {
	return c.Gateway.FreeBalance(ctx, account)
}

func roleStrings(roles []didop.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
