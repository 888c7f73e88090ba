package policy

import (
	"strings"

	"github.com/odontoweb/clinica/core/user"
)

// Table is the single authoritative route policy: public path prefixes,
// role restrictions per route prefix, and each role's default landing page.
// The route guard, the edge gate and any navigation-rendering collaborator
// all consult this one table; nothing else hard-codes paths or roles.
type Table struct {
	public  []string
	rules   []rule
	landing map[user.Role]string
}

type rule struct {
	prefix string
	roles  RoleSet
}

// Default returns the portal's route policy.
func Default() *Table {
	return &Table{
		public: []string{
			"/",
			"/login",
			"/register",
			"/password-reset",
			"/v1/auth/login",
			"/v1/auth/password-reset",
			"/v1/auth/password-reset-confirm",
			"/v1/auth/routes",
		},
		rules: []rule{
			{prefix: "/admin", roles: NewRoleSet(user.RoleAdmin)},
			{prefix: "/patients", roles: NewRoleSet(user.RoleStudent, user.RoleProfessor, user.RoleAdmin, user.RoleSecretary)},
			{prefix: "/specialty", roles: NewRoleSet(user.RoleProfessor, user.RoleAdmin)},
			{prefix: "/v1/users", roles: NewRoleSet(user.RoleAdmin)},
			// /appointments and /v1/appointments: any authenticated identity
		},
		landing: map[user.Role]string{
			user.RolePatient:   "/appointments",
			user.RoleStudent:   "/patients",
			user.RoleProfessor: "/specialty",
			user.RoleAdmin:     "/admin/users",
			user.RoleSecretary: "/appointments",
		},
	}
}

// IsPublic reports whether the path is reachable without a session.
// Membership is checked by prefix so nested routes inherit their ancestor's
// policy; the bare "/" only matches itself.
func (t *Table) IsPublic(path string) bool {
	for _, p := range t.public {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequiredRoles returns the permitted role set for the path. The longest
// matching prefix wins, so a nested route can override its ancestor. An
// empty set means any authenticated identity may pass.
func (t *Table) RequiredRoles(path string) RoleSet {
	var best rule
	for _, r := range t.rules {
		if matchPrefix(path, r.prefix) && len(r.prefix) > len(best.prefix) {
			best = r
		}
	}
	return best.roles
}

// LandingPath returns the role's default page after login. Unknown roles
// land on the portal home.
func (t *Table) LandingPath(role user.Role) string {
	if p, ok := t.landing[role]; ok {
		return p
	}
	return "/"
}

// Landing exposes the full role -> landing-path table for navigation
// collaborators.
func (t *Table) Landing() map[user.Role]string {
	out := make(map[user.Role]string, len(t.landing))
	for r, p := range t.landing {
		out[r] = p
	}
	return out
}

// Public returns the public path prefixes.
func (t *Table) Public() []string {
	out := make([]string, len(t.public))
	copy(out, t.public)
	return out
}

// Rules returns the permitted roles per restricted route prefix.
func (t *Table) Rules() map[string][]user.Role {
	out := make(map[string][]user.Role, len(t.rules))
	for _, r := range t.rules {
		out[r.prefix] = r.roles.Roles()
	}
	return out
}

// LoginPath is where denied navigations are redirected.
func (t *Table) LoginPath() string { return "/login" }

// IsAuthEntry reports whether the path is a login/register surface that an
// already-authenticated navigation should skip.
func (t *Table) IsAuthEntry(path string) bool {
	return matchPrefix(path, "/login") || matchPrefix(path, "/register")
}

func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
