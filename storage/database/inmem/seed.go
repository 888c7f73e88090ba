package inmemdb

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core/user"
)

// demo fixture accounts; passwords are bcrypt-hashed at seed time so the
// verification path is the same one a real credential table would use
var seedUsers = []struct {
	email, password, name string
	role                  user.Role
	specialty             string
}{
	{email: "admin@clinica.com", password: "admin", name: "Dr. Admin", role: user.RoleAdmin},
	{email: "patient@clinica.com", password: "patient", name: "Juan Pérez", role: user.RolePatient},
	{email: "student@clinica.com", password: "student", name: "María García", role: user.RoleStudent},
	{email: "professor@clinica.com", password: "professor", name: "Dr. Rodríguez", role: user.RoleProfessor, specialty: "Endodoncia"},
	{email: "secretary@clinica.com", password: "secretary", name: "Ana López", role: user.RoleSecretary},
}

// Seed loads the demo accounts into the user table. Idempotent: existing
// emails are left untouched.
func Seed(ctx context.Context, repo user.Repository) error {
	now := time.Now().UTC()
	for _, su := range seedUsers {
		if _, err := repo.GetUserByEmail(ctx, su.email); err == nil {
			continue
		} else if errors.Cause(err) != user.ErrNotFound {
			return err
		}

		usr := user.User{
			Identity: user.Identity{
				Email:     su.email,
				Name:      su.name,
				Role:      su.role,
				Specialty: su.specialty,
			},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := usr.SetPassword(su.password); err != nil {
			return errors.Wrapf(err, "hashing seed password for %s", su.email)
		}
		if _, err := repo.CreateUser(ctx, usr); err != nil {
			return errors.Wrapf(err, "seeding %s", su.email)
		}
	}
	return nil
}
