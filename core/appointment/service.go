package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound      = errors.New("appointment not found")
	ErrAlreadyClosed = errors.New("appointment is already completed or cancelled")
)

type (
	Repository interface {
		CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
		QueryAllAppointments(ctx context.Context) ([]Appointment, error)
		GetAppointmentByID(ctx context.Context, id string) (Appointment, error)
		// FilterAppointments applies AND operation on available QueryFilter fields.
		FilterAppointments(ctx context.Context, filter QueryFilter) ([]Appointment, error)
		UpdateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, na NewAppointment) (Appointment, error) {
	now := time.Now().UTC()
	appt := Appointment{
		ID:        uuid.New().String(),
		PatientID: na.PatientID,
		StudentID: na.StudentID,
		Date:      na.Date,
		Reason:    na.Reason,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateAppointment(ctx, appt)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Appointment, error) {
	return svc.repo.QueryAllAppointments(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Appointment, error) {
	return svc.repo.GetAppointmentByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Appointment, error) {
	return svc.repo.FilterAppointments(ctx, filter)
}

// ForPatient lists a patient's own appointments.
func (svc *Service) ForPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	return svc.repo.FilterAppointments(ctx, QueryFilter{PatientID: patientID})
}

func (svc *Service) setStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	appt, err := svc.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if appt.Status != StatusScheduled {
		return Appointment{}, ErrAlreadyClosed
	}
	appt.Status = status
	appt.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAppointment(ctx, appt)
}

func (svc *Service) Cancel(ctx context.Context, id string) (Appointment, error) {
	return svc.setStatus(ctx, id, StatusCancelled)
}

func (svc *Service) Complete(ctx context.Context, id string) (Appointment, error) {
	return svc.setStatus(ctx, id, StatusCompleted)
}
