package policy

import (
	"testing"

	"github.com/odontoweb/clinica/core/user"
)

func TestTableIsPublic(t *testing.T) {
	table := Default()

	tests := []struct {
		path string
		want bool
	}{
		{path: "/", want: true},
		{path: "/login", want: true},
		{path: "/register", want: true},
		{path: "/password-reset", want: true},
		{path: "/password-reset/confirm", want: true}, // nested inherits
		{path: "/v1/auth/login", want: true},
		{path: "/dashboard", want: false},
		{path: "/loginx", want: false}, // prefix match is segment-wise
		{path: "/appointments", want: false},
		{path: "/admin/users", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := table.IsPublic(tt.path); got != tt.want {
				t.Errorf("IsPublic(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestTableRequiredRoles(t *testing.T) {
	table := Default()

	tests := []struct {
		name     string
		path     string
		has      []user.Role
		lacks    []user.Role
		anyAuthd bool
	}{
		{name: "admin prefix", path: "/admin", has: []user.Role{user.RoleAdmin}, lacks: []user.Role{user.RoleStudent}},
		{name: "nested admin route inherits", path: "/admin/users/42", has: []user.Role{user.RoleAdmin}, lacks: []user.Role{user.RolePatient}},
		{name: "patients excludes patients", path: "/patients", has: []user.Role{user.RoleStudent, user.RoleSecretary}, lacks: []user.Role{user.RolePatient}},
		{name: "appointments open to any identity", path: "/appointments/new", anyAuthd: true},
		{name: "unlisted route open to any identity", path: "/profile", anyAuthd: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := table.RequiredRoles(tt.path)
			if tt.anyAuthd {
				if len(roles) != 0 {
					t.Fatalf("RequiredRoles(%q) = %v, want empty set", tt.path, roles)
				}
				return
			}
			for _, r := range tt.has {
				if !roles.Has(r) {
					t.Errorf("RequiredRoles(%q) should permit %v", tt.path, r)
				}
			}
			for _, r := range tt.lacks {
				if roles.Has(r) {
					t.Errorf("RequiredRoles(%q) should not permit %v", tt.path, r)
				}
			}
		})
	}
}

func TestTableLandingPath(t *testing.T) {
	table := Default()

	tests := []struct {
		role user.Role
		want string
	}{
		{role: user.RolePatient, want: "/appointments"},
		{role: user.RoleStudent, want: "/patients"},
		{role: user.RoleProfessor, want: "/specialty"},
		{role: user.RoleAdmin, want: "/admin/users"},
		{role: user.RoleSecretary, want: "/appointments"},
		{role: user.Role("ghost"), want: "/"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := table.LandingPath(tt.role); got != tt.want {
				t.Errorf("LandingPath(%v) = %q, want %q", tt.role, got, tt.want)
			}
		})
	}
}
