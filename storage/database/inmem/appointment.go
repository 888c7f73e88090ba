package inmemdb

import (
	"context"
	"sort"

	"github.com/odontoweb/clinica/core/appointment"
)

type appointmentRepository struct {
	db *appointmentTable
}

func NewAppointmentRepository(db *DB) appointment.Repository {
	return &appointmentRepository{db: db.appointment}
}

func (repo *appointmentRepository) query() []appointment.Appointment {
	appts := make([]appointment.Appointment, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		appts = append(appts, *a)
	}
	sort.Slice(appts, func(i, j int) bool { return appts[i].Date.Before(appts[j].Date) })
	return appts
}

func (repo *appointmentRepository) CreateAppointment(_ context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[appt.ID] = &appt
	return appt, nil
}

func (repo *appointmentRepository) QueryAllAppointments(_ context.Context) ([]appointment.Appointment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *appointmentRepository) GetAppointmentByID(_ context.Context, id string) (appointment.Appointment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if appt, ok := repo.db.table[id]; ok {
		return *appt, nil
	}
	return appointment.Appointment{}, appointment.ErrNotFound
}

func (repo *appointmentRepository) FilterAppointments(_ context.Context, filter appointment.QueryFilter) ([]appointment.Appointment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.IsEmpty() {
		return repo.query(), nil
	}

	var appts []appointment.Appointment
	for _, appt := range repo.query() {
		if filter.PatientID != "" && appt.PatientID != filter.PatientID {
			continue
		}
		if filter.StudentID != "" && appt.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

func (repo *appointmentRepository) UpdateAppointment(_ context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[appt.ID]; !ok {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	repo.db.table[appt.ID] = &appt
	return appt, nil
}
