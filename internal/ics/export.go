// Package ics exports projected calendar events as an iCalendar feed.
package ics

import (
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "schedweb/internal/log"
	"schedweb/internal/model"
)

const prodID = "-//schedweb//scheduler//EN"

// UID returns the stable VEVENT UID for an appointment.
func UID(appointmentID int64) string {
	return "appointment-" + strconv.FormatInt(appointmentID, 10) + "@schedweb"
}

// Build returns a calendar holding one VEVENT per event. Times are written
// in UTC. editURL, when non-nil, supplies each event's URL property.
func Build(name string, events []model.CalendarEvent, stamp time.Time, editURL func(id int64) string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(UID(ev.Appointment.ID))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(ev.Title)
		ve.SetDescription(ev.Description)
		if editURL != nil {
			ve.SetURL(editURL(ev.Appointment.ID))
		}
		for _, s := range ev.ServiceNames {
			if s != "" {
				ve.AddProperty(ical.ComponentPropertyCategories, s)
			}
		}
	}
	return cal
}

// Write serializes events to w.
func Write(w io.Writer, name string, events []model.CalendarEvent, editURL func(id int64) string) error {
	cal := Build(name, events, time.Now(), editURL)
	if err := cal.SerializeTo(w); err != nil {
		appLog.Error("ics export failed", err, "event_count", len(events))
		return err
	}
	appLog.Debug("ics export completed", "event_count", len(events))
	return nil
}
