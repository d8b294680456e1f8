package didop

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings;
// Error() strings are human-readable and may evolve.
type Kind string

const (
	// KindCatalog covers lookups of operations the catalog does not define.
	KindCatalog Kind = "Catalog"
	// KindArity covers argument count or shape mismatches. These are
	// programmer errors and are never retried.
	KindArity Kind = "Arity"
	// KindEncoding covers compact-encoding failures (argument too large).
	KindEncoding Kind = "Encoding"
	// KindRole covers unknown role tags in a role set.
	KindRole Kind = "Role"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g. QSB-OP-002) naming the violated rule.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
