package client

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SchemaJSON serializes a schema body with a "_nonce" field mixed in, so two
// registrations of the same body derive distinct schema identifiers. The
// payload builder itself stays deterministic; freshness lives in the bytes
// it is handed.
//
// An empty nonce draws 16 random bytes.
func SchemaJSON(body map[string]any, nonce string) ([]byte, error) {
	if nonce == "" {
		var buf [16]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("client: schema nonce: %w", err)
		}
		nonce = hex.EncodeToString(buf[:])
	}
	obj := make(map[string]any, len(body)+1)
	for k, v := range body {
		obj[k] = v
	}
	obj["_nonce"] = nonce
	return json.Marshal(obj)
}
