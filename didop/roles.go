package didop

import "fmt"

// Role is a verification-relationship tag attached to a DID key.
type Role string

// Role tags and their wire indices. The indices are part of the signed
// payload format and are never renumbered.
const (
	RoleAuthentication       Role = "Authentication"
	RoleAssertionMethod      Role = "AssertionMethod"
	RoleKeyAgreement         Role = "KeyAgreement"
	RoleCapabilityInvocation Role = "CapabilityInvocation"
	RoleCapabilityDelegation Role = "CapabilityDelegation"
)

var roleIndex = map[Role]byte{
	RoleAuthentication:       0,
	RoleAssertionMethod:      1,
	RoleKeyAgreement:         2,
	RoleCapabilityInvocation: 3,
	RoleCapabilityDelegation: 4,
}

// AllRoles lists the known role tags in wire-index order.
var AllRoles = []Role{
	RoleAuthentication,
	RoleAssertionMethod,
	RoleKeyAgreement,
	RoleCapabilityInvocation,
	RoleCapabilityDelegation,
}

// Index returns the wire index of r.
func (r Role) Index() (byte, error) {
	idx, ok := roleIndex[r]
	if !ok {
		return 0, newError(KindRole, "QSB-ROLE-001", fmt.Sprintf("unknown role tag %q", string(r)))
	}
	return idx, nil
}

// ParseRole converts a textual role tag into a Role, rejecting unknown tags.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, err := r.Index(); err != nil {
		return "", err
	}
	return r, nil
}

// ParseRoles converts a list of textual role tags.
func ParseRoles(ss []string) ([]Role, error) {
	out := make([]Role, 0, len(ss))
	for _, s := range ss {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
