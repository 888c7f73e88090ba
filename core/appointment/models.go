package appointment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odontoweb/clinica/core"
)

// Status is the closed set of appointment states.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	StudentID string    `json:"student_id,omitempty"` // assigned treating student
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewAppointment contains information needed to schedule an Appointment.
type NewAppointment struct {
	PatientID string    `json:"patient_id" validate:"required"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date" validate:"required"`
	Reason    string    `json:"reason" validate:"required"`
}

func (na *NewAppointment) Validate(validate *validator.Validate) error {
	na.Reason = core.CleanString(na.Reason)
	return validate.Struct(na)
}

type QueryFilter struct {
	PatientID string `query:"patient_id"`
	StudentID string `query:"student_id"`
	Status    Status `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.PatientID == "" && qf.StudentID == "" && qf.Status == ""
}
