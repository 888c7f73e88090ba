package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-playground/validator/v10"

	"github.com/odontoweb/clinica/core"
)

// Role is the closed set of portal roles. Adding a role means touching
// AllRoles, rolePriorities and the policy table; nothing matches on raw
// strings elsewhere.
type Role string

const (
	RolePatient   Role = "patient"
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretary"
)

var (
	AllRoles = []Role{RolePatient, RoleStudent, RoleProfessor, RoleAdmin, RoleSecretary}

	rolePriorities = map[Role]int{
		RoleAdmin:     30,
		RoleProfessor: 20,
		RoleSecretary: 15,
		RoleStudent:   10,
		RolePatient:   1,
	}

	// Roles is the display listing exposed to admin clients.
	Roles = []RoleInfo{
		{Name: "Paciente", Value: RolePatient},
		{Name: "Estudiante", Value: RoleStudent},
		{Name: "Profesor", Value: RoleProfessor},
		{Name: "Administrador", Value: RoleAdmin},
		{Name: "Secretaria", Value: RoleSecretary},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) String() string { return string(r) }

// RolePriority ranks roles for "cannot grant above your own" checks.
func RolePriority(role Role) int {
	return rolePriorities[role]
}

// Identity is the authenticated profile carried by a session. It is
// immutable once issued; a fresh one is built at each login.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Specialty string `json:"specialty,omitempty"` // professors only
}

type User struct {
	Identity
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            Role   `json:"role" validate:"required,knownrole"`
	Specialty       string `json:"specialty" validate:"omitempty,specialty"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Specialty = core.CleanString(nu.Specialty)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            Role   `json:"role" validate:"omitempty,knownrole"`
	Specialty       string `json:"specialty" validate:"omitempty,specialty"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc *Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
