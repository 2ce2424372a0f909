package schedule

import (
	"strings"

	"github.com/samber/lo"

	"schedweb/internal/model"
	"schedweb/internal/store"
)

// Project joins the filtered appointments with the snapshot's clients,
// users and services. One event is produced per appointment, in the order
// given; no sort is applied.
func Project(snap store.Snapshot, appts []model.Appointment) []model.CalendarEvent {
	events := make([]model.CalendarEvent, 0, len(appts))
	for _, ap := range appts {
		events = append(events, projectOne(snap, ap))
	}
	return events
}

func projectOne(snap store.Snapshot, ap model.Appointment) model.CalendarEvent {
	// Lookup misses yield zero-value placeholders.
	client := lo.FindOrElse(snap.Clients, model.Client{}, func(c model.Client) bool { return c.ID == ap.ClientID })
	user := lo.FindOrElse(snap.Users, model.User{}, func(u model.User) bool { return u.ID == ap.UserID })

	services := make([]model.Service, 0)
	names := make([]string, 0)
	for _, link := range snap.AppointmentServices {
		if link.AppointmentID != ap.ID {
			continue
		}
		s := lo.FindOrElse(snap.Services, model.Service{}, func(s model.Service) bool { return s.ID == link.ServiceID })
		services = append(services, s)
		names = append(names, s.Name)
	}

	return model.CalendarEvent{
		Title:        client.Name,
		Start:        ap.StartTime.UTC(),
		End:          ap.EndTime.UTC(),
		Description:  Describe(client.Name, user.Name, names),
		Appointment:  ap,
		Client:       client,
		User:         user,
		Services:     services,
		ServiceNames: names,
	}
}

// Describe builds the event description. With no services the Reason
// segment is present but empty.
func Describe(client, user string, serviceNames []string) string {
	var b strings.Builder
	b.WriteString("Client: ")
	b.WriteString(client)
	b.WriteString("\nUser: ")
	b.WriteString(user)
	b.WriteString("\nReason: ")
	b.WriteString(strings.Join(serviceNames, ", "))
	return b.String()
}

// FindEvent returns the projected event for an appointment id.
func FindEvent(events []model.CalendarEvent, appointmentID int64) (model.CalendarEvent, bool) {
	return lo.Find(events, func(e model.CalendarEvent) bool { return e.Appointment.ID == appointmentID })
}
