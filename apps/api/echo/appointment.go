package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/appointment"
	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/user"
)

type apptApi struct {
	svc      *appointment.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerAppointmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *appointment.Service, usrSvc *user.Service, table *policy.Table, validate *validator.Validate) {
	api := apptApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	// any authenticated identity may enter; handlers narrow by role
	ag := g.Group("/appointments", jwt, tableRoleMiddleware(table))
	ag.GET("", api.query)
	ag.POST("", api.create, anyRoleMiddleware(user.RoleSecretary, user.RoleAdmin))
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/cancel", api.cancel)
	ag.PUT("/:id/complete", api.complete, anyRoleMiddleware(user.RoleStudent, user.RoleProfessor, user.RoleAdmin))
}

// Handlers

func (api *apptApi) create(ctx echo.Context) error {
	var data appointment.NewAppointment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAppointment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()

	// the patient must exist and actually be a patient
	patient, err := api.usrSvc.GetByID(rctx, data.PatientID)
	if err != nil || patient.Role != user.RolePatient {
		return core.NewFieldError("patient_id", "unknown patient")
	}
	if data.StudentID != "" {
		student, err := api.usrSvc.GetByID(rctx, data.StudentID)
		if err != nil || student.Role != user.RoleStudent {
			return core.NewFieldError("student_id", "unknown student")
		}
	}

	appt, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating appointment")
	}
	return ctx.JSON(http.StatusCreated, appt)
}

// query lists appointments. Patients only ever see their own; everyone else
// sees the full (optionally filtered) agenda.
func (api *apptApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()

	var appts []appointment.Appointment
	if claims.Role == user.RolePatient {
		appts, err = api.svc.ForPatient(rctx, claims.Subject)
	} else {
		filter := new(appointment.QueryFilter)
		if err := ctx.Bind(filter); err != nil {
			return ctx.JSON(http.StatusOK, []appointment.Appointment{})
		}
		if filter.IsEmpty() {
			appts, err = api.svc.QueryAll(rctx)
		} else {
			appts, err = api.svc.Filter(rctx, *filter)
		}
	}
	if err != nil {
		return errors.Wrap(err, "querying appointments")
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return ctx.JSON(http.StatusOK, appts)
}

func (api *apptApi) retrieve(ctx echo.Context) error {
	appt, err := api.getVisible(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, appt)
}

func (api *apptApi) cancel(ctx echo.Context) error {
	appt, err := api.getVisible(ctx)
	if err != nil {
		return err
	}

	// patients may cancel their own; staff roles may cancel any
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	switch claims.Role {
	case user.RoleSecretary, user.RoleAdmin:
	case user.RolePatient:
		// getVisible already scoped this to their own
	default:
		return &insufficientRoleError{
			Required: policy.NewRoleSet(user.RolePatient, user.RoleSecretary, user.RoleAdmin).Roles(),
			Actual:   claims.Role,
		}
	}

	appt, err = api.svc.Cancel(ctx.Request().Context(), appt.ID)
	if err != nil {
		return apptError(err, "cancelling appointment")
	}
	return ctx.JSON(http.StatusOK, appt)
}

func (api *apptApi) complete(ctx echo.Context) error {
	appt, err := api.getVisible(ctx)
	if err != nil {
		return err
	}
	appt, err = api.svc.Complete(ctx.Request().Context(), appt.ID)
	if err != nil {
		return apptError(err, "completing appointment")
	}
	return ctx.JSON(http.StatusOK, appt)
}

// getVisible fetches the :id appointment, hiding other patients'
// appointments from patient callers.
func (api *apptApi) getVisible(ctx echo.Context) (appointment.Appointment, error) {
	appt, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == appointment.ErrNotFound {
			return appointment.Appointment{}, errHttpNotFound
		}
		return appointment.Appointment{}, errors.Wrap(err, "finding appointment by ID")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return appointment.Appointment{}, errors.Wrap(err, "getting context claims")
	}
	if claims.Role == user.RolePatient && appt.PatientID != claims.Subject {
		return appointment.Appointment{}, errHttpNotFound
	}
	return appt, nil
}

func apptError(err error, msg string) error {
	switch errors.Cause(err) {
	case appointment.ErrNotFound:
		return errHttpNotFound
	case appointment.ErrAlreadyClosed:
		return core.NewValidationError(appointment.ErrAlreadyClosed)
	}
	return errors.Wrap(err, msg)
}
