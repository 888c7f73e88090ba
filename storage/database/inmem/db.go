// Package inmemdb holds the portal's mock data tables. The demo data set
// is small and fixed, so tables are plain maps behind RW mutexes.
package inmemdb

import (
	"sync"

	"github.com/odontoweb/clinica/core/appointment"
	"github.com/odontoweb/clinica/core/user"
)

type (
	DB struct {
		user        *userTable
		appointment *appointmentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	appointmentTable struct {
		sync.RWMutex
		table map[string]*appointment.Appointment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		appointment: &appointmentTable{table: make(map[string]*appointment.Appointment)},
	}
	return db, nil
}
