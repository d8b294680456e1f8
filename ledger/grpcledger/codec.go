package grpcledger

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/ledger"
)

// Byte-string values cross the wire as base64 inside structpb fields; the
// identity-level signature stays opaque bytes end to end.

func callToStruct(call ledger.Call) (*structpb.Struct, error) {
	args := make([]any, 0, len(call.Args))
	for _, a := range call.Args {
		m := map[string]any{"name": a.Name}
		if a.Roles != nil {
			roles := make([]any, 0, len(a.Roles))
			for _, r := range a.Roles {
				roles = append(roles, r)
			}
			m["roles"] = roles
		} else {
			m["bytes"] = base64.StdEncoding.EncodeToString(a.Bytes)
		}
		args = append(args, m)
	}
	return structpb.NewStruct(map[string]any{
		"op":        string(call.Op),
		"args":      args,
		"signature": base64.StdEncoding.EncodeToString(call.Signature),
	})
}

func callFromStruct(s *structpb.Struct) (ledger.Call, error) {
	m := s.AsMap()
	op, _ := m["op"].(string)
	if op == "" {
		return ledger.Call{}, fmt.Errorf("grpcledger: call missing op")
	}
	sigB64, _ := m["signature"].(string)
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ledger.Call{}, fmt.Errorf("grpcledger: bad signature encoding: %w", err)
	}

	rawArgs, _ := m["args"].([]any)
	args := make([]ledger.Arg, 0, len(rawArgs))
	for i, raw := range rawArgs {
		am, ok := raw.(map[string]any)
		if !ok {
			return ledger.Call{}, fmt.Errorf("grpcledger: call arg %d malformed", i)
		}
		name, _ := am["name"].(string)
		arg := ledger.Arg{Name: name}
		if rawRoles, ok := am["roles"].([]any); ok {
			arg.Roles = make([]string, 0, len(rawRoles))
			for _, rr := range rawRoles {
				role, ok := rr.(string)
				if !ok {
					return ledger.Call{}, fmt.Errorf("grpcledger: call arg %q has non-string role", name)
				}
				arg.Roles = append(arg.Roles, role)
			}
		} else {
			b64, _ := am["bytes"].(string)
			b, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return ledger.Call{}, fmt.Errorf("grpcledger: call arg %q bad bytes encoding: %w", name, err)
			}
			arg.Bytes = b
		}
		args = append(args, arg)
	}
	return ledger.Call{Op: didop.Op(op), Args: args, Signature: sig}, nil
}

func receiptToStruct(r ledger.Receipt) (*structpb.Struct, error) {
	events := make([]any, 0, len(r.Events))
	for _, ev := range r.Events {
		params := make(map[string]any, len(ev.Params))
		for k, v := range ev.Params {
			params[k] = v
		}
		events = append(events, map[string]any{
			"pallet": ev.Pallet,
			"name":   ev.Name,
			"params": params,
		})
	}
	return structpb.NewStruct(map[string]any{
		"extrinsic_hash": r.ExtrinsicHash,
		"block_hash":     r.BlockHash,
		"finalized_hash": r.FinalizedHash,
		"success":        r.Success,
		"error":          r.Error,
		"events":         events,
	})
}

func receiptFromStruct(s *structpb.Struct) ledger.Receipt {
	m := s.AsMap()
	r := ledger.Receipt{}
	r.ExtrinsicHash, _ = m["extrinsic_hash"].(string)
	r.BlockHash, _ = m["block_hash"].(string)
	r.FinalizedHash, _ = m["finalized_hash"].(string)
	r.Success, _ = m["success"].(bool)
	r.Error, _ = m["error"].(string)
	rawEvents, _ := m["events"].([]any)
	for _, raw := range rawEvents {
		em, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ev := ledger.Event{Params: map[string]string{}}
		ev.Pallet, _ = em["pallet"].(string)
		ev.Name, _ = em["name"].(string)
		if params, ok := em["params"].(map[string]any); ok {
			for k, v := range params {
				if sv, ok := v.(string); ok {
					ev.Params[k] = sv
				}
			}
		}
		r.Events = append(r.Events, ev)
	}
	return r
}
