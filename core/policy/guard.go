package policy

import (
	"sort"

	"github.com/odontoweb/clinica/core/user"
)

// Decision is the route guard's verdict for a render/navigation attempt.
type Decision int

const (
	// Wait: session state is not resolved yet; render a loading state and
	// take no action. Redirecting during this window is a bug.
	Wait Decision = iota
	// Allow: render the page body.
	Allow
	// DenyNoIdentity: no authenticated identity; redirect to login and
	// preserve the originally requested path for post-login return.
	DenyNoIdentity
	// DenyWrongRole: authenticated but the role is not permitted; redirect
	// to the role's own landing page and surface the mismatch.
	DenyWrongRole
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case DenyNoIdentity:
		return "deny-no-identity"
	case DenyWrongRole:
		return "deny-wrong-role"
	}
	return "unknown"
}

// RoleSet is a set of permitted roles. The empty set means "any
// authenticated identity".
type RoleSet map[user.Role]struct{}

func NewRoleSet(roles ...user.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(r user.Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the set's members sorted, for stable display in access
// denied responses.
func (s RoleSet) Roles() []user.Role {
	roles := make([]user.Role, 0, len(s))
	for r := range s {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Decide is the route guard: a pure decision over explicit inputs, no
// hidden reads.
func Decide(required RoleSet, ident *user.Identity, initialized bool) Decision {
	if !initialized {
		return Wait
	}
	if ident == nil {
		return DenyNoIdentity
	}
	if len(required) > 0 && !required.Has(ident.Role) {
		return DenyWrongRole
	}
	return Allow
}
