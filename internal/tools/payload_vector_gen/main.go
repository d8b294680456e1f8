// payload_vector_gen prints fixed payload vectors for cross-implementation
// checks: any client producing these operations must emit byte-identical
// payloads, and any signer fed the same seed must reproduce the derived DID.
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/ident"
	"qsb.qbck.io/did/keys"
)

func mustKeypair(fill byte) keys.Keypair {
	kp, err := keys.NewKeypairFromSeed(bytes.Repeat([]byte{fill}, keys.SeedSize))
	if err != nil {
		panic(err)
	}
	return kp
}

func mustBuild(op didop.Op, values ...didop.Value) []byte {
	payload, err := didop.Build(op, values...)
	if err != nil {
		panic(err)
	}
	return payload
}

func main() {
	genesis := bytes.Repeat([]byte{0x42}, 32)
	kp := mustKeypair(0xA1)
	extra := mustKeypair(0xB2)

	did, err := ident.DeriveDID(genesis, kp.Public)
	if err != nil {
		panic(err)
	}
	didBytes := []byte(did)

	fmt.Printf("genesis=%s\n", hex.EncodeToString(genesis))
	fmt.Printf("public_key=%s\n", hex.EncodeToString(kp.Public))
	fmt.Printf("did=%s\n", did)
	fmt.Println()

	vectors := []struct {
		name    string
		payload []byte
	}{
		{"create_identity", mustBuild(didop.CreateIdentity, didop.Bytes(kp.Public))},
		{"add_key", mustBuild(didop.AddKey,
			didop.Bytes(didBytes), didop.Bytes(extra.Public),
			didop.Roles(didop.RoleAssertionMethod))},
		{"update_roles", mustBuild(didop.UpdateRoles,
			didop.Bytes(didBytes), didop.Bytes(extra.Public),
			didop.Roles(didop.RoleCapabilityInvocation))},
		{"set_metadata", mustBuild(didop.SetMetadata,
			didop.Bytes(didBytes), didop.Bytes([]byte("profile")),
			didop.Bytes([]byte("https://example.com/profile")))},
		{"add_service", mustBuild(didop.AddService,
			didop.Bytes(didBytes), didop.Bytes([]byte("#agent")),
			didop.Bytes([]byte("DIDCommMessaging")),
			didop.Bytes([]byte("https://agent.example.com")))},
		{"revoke_key", mustBuild(didop.RevokeKey,
			didop.Bytes(didBytes), didop.Bytes(extra.Public))},
		{"deactivate", mustBuild(didop.DeactivateIdentity, didop.Bytes(didBytes))},
		{"register_schema", mustBuild(didop.RegisterSchema,
			didop.Bytes([]byte(`{"name":"example","version":"1.0"}`)))},
	}

	for _, v := range vectors {
		fmt.Printf("%s=%s\n", v.name, hex.EncodeToString(v.payload))
	}
}
