package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a service provider.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Client is a service requester.
type Client struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`
	Notes        string `json:"notes"`
}

// Service is a billable offering.
type Service struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Appointment links one client and one user over a single-day time span.
type Appointment struct {
	ID           int64           `json:"id"`
	ClientID     int64           `json:"client_id"`
	UserID       int64           `json:"user_id"`
	StartTime    Timestamp       `json:"start_time"`
	EndTime      Timestamp       `json:"end_time"`
	Notes        string          `json:"notes"`
	PriceCharged decimal.Decimal `json:"price_charged"`
}

// AppointmentService is the many-to-many link between appointments and
// services.
type AppointmentService struct {
	AppointmentID int64 `json:"appointment_id"`
	ServiceID     int64 `json:"service_id"`
}

// CalendarEvent is the view-model handed to the calendar. It is rebuilt from
// the record store on every render and never mutated.
type CalendarEvent struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string

	Appointment  Appointment
	Client       Client
	User         User
	Services     []Service
	ServiceNames []string
}

// ServiceIDs returns the ids of the linked services in link order.
func (e CalendarEvent) ServiceIDs() []int64 {
	ids := make([]int64, 0, len(e.Services))
	for _, s := range e.Services {
		ids = append(ids, s.ID)
	}
	return ids
}
