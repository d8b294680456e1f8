package didop

import (
	"errors"
	"fmt"

	"qsb.qbck.io/did/scale"
)

type valueKind int

const (
	valueBytes valueKind = iota
	valueRoles
)

// Value is one argument handed to Build. Construct values with Bytes, Text,
// or Roles; the catalog descriptor decides how each is encoded.
type Value struct {
	kind  valueKind
	bytes []byte
	roles []Role
}

// Bytes wraps a byte-string argument.
func Bytes(b []byte) Value { return Value{kind: valueBytes, bytes: b} }

// Text wraps a UTF-8 string argument.
func Text(s string) Value { return Value{kind: valueBytes, bytes: []byte(s)} }

// Roles wraps an ordered role-set argument.
func Roles(rs ...Role) Value { return Value{kind: valueRoles, roles: rs} }

// Build returns the exact byte sequence the identity-level signature covers
// for op: prefix || encode(field_1) || encode(field_2) || ...
//
// Build is pure: identical inputs always produce identical bytes. No
// timestamps, nonces, or environment data are folded in; any freshness a
// caller needs (e.g. a schema nonce) must already be embedded in an argument.
// The signature itself is never an argument: it cannot be part of what it
// signs.
func Build(op Op, values ...Value) ([]byte, error) {
	desc, ok := Lookup(op)
	if !ok {
		return nil, newError(KindCatalog, "QSB-OP-001", fmt.Sprintf("unknown operation kind %q", string(op)))
	}
	if len(values) != len(desc.Fields) {
		return nil, newError(KindArity, "QSB-OP-002",
			fmt.Sprintf("%s takes %d arguments, got %d", desc.Op, len(desc.Fields), len(values)))
	}

	out := []byte(desc.Prefix)
	for i, field := range desc.Fields {
		v := values[i]
		switch field.Kind {
		case FieldBytes:
			if v.kind != valueBytes {
				return nil, newError(KindArity, "QSB-OP-003",
					fmt.Sprintf("%s argument %q must be a byte-string", desc.Op, field.Name))
			}
			var err error
			out, err = scale.AppendBytes(out, v.bytes)
			if err != nil {
				return nil, encodingError(desc.Op, field.Name, err)
			}
		case FieldRoleSet:
			if v.kind != valueRoles {
				return nil, newError(KindArity, "QSB-OP-003",
					fmt.Sprintf("%s argument %q must be a role set", desc.Op, field.Name))
			}
			var err error
			out, err = appendRoleSet(out, v.roles)
			if err != nil {
				return nil, err
			}
		case FieldRaw:
			if v.kind != valueBytes {
				return nil, newError(KindArity, "QSB-OP-003",
					fmt.Sprintf("%s argument %q must be a byte-string", desc.Op, field.Name))
			}
			out = append(out, v.bytes...)
		default:
			return nil, newError(KindCatalog, "QSB-OP-004",
				fmt.Sprintf("%s argument %q has unsupported field kind", desc.Op, field.Name))
		}
	}
	return out, nil
}

// appendRoleSet appends compact count || index bytes.
func appendRoleSet(dst []byte, roles []Role) ([]byte, error) {
	dst, err := scale.AppendLength(dst, uint32(len(roles)))
	if err != nil {
		return nil, wrapError(KindEncoding, "QSB-ENC-001", "role set too large", err)
	}
	for _, r := range roles {
		idx, err := r.Index()
		if err != nil {
			return nil, err
		}
		dst = append(dst, idx)
	}
	return dst, nil
}

func encodingError(op Op, field string, cause error) error {
	if errors.Is(cause, scale.ErrOverflow) {
		return wrapError(KindEncoding, "QSB-ENC-001",
			fmt.Sprintf("%s argument %q exceeds the compact encoding range", op, field), cause)
	}
	return wrapError(KindEncoding, "QSB-ENC-002",
		fmt.Sprintf("%s argument %q failed to encode", op, field), cause)
}
