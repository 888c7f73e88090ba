package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(email, name string, role user.Role, specialty, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	if usr, err = cli.usrRepo.GetUserByEmail(ctx, email); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Identity: user.Identity{Email: email},
		}
	}
	usr.Name = name
	usr.Role = role
	if role == user.RoleProfessor {
		usr.Specialty = core.CleanString(specialty)
	} else {
		usr.Specialty = ""
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	now := time.Now().UTC()
	isActive := true
	if usr.ID == "" {
		usr.IsActive = true
		usr.CreatedAt = now
		usr.UpdatedAt = now
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}
	usr.UpdatedAt = now
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	return err
}
