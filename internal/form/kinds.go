package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/shopspring/decimal"

	"schedweb/internal/config"
	"schedweb/internal/model"
)

// Kind describes one editable entity type: its template, backend resource,
// id key, and how collected values become a request payload.
type Kind interface {
	// ItemName is the display name used in titles, e.g. "Event".
	ItemName() string
	// Noun is used in outcome messages, e.g. "appointment".
	Noun() string
	Resource() string
	// IDKey is the payload key that carries the record id on update and
	// delete.
	IDKey() string
	Template() Template
	// Rules returns extra validator tags per field name.
	Rules() map[string]string
	// Payload converts collected values into the create/update body.
	Payload(v Values) (map[string]any, error)
}

// Record is an existing entity being edited. Seed produces the initial
// values for t from the record.
type Record interface {
	RecordID() int64
	Seed(t Template) Values
}

// seedSameNamed fills each template field from props by name. Missing
// properties seed "" (or [] for multi-selects).
func seedSameNamed(t Template, props map[string]string) Values {
	out := blank(t)
	for _, f := range t {
		name := f.common().Name
		if isMulti(f) {
			continue
		}
		if v, ok := props[name]; ok {
			out[name] = Str(v)
		}
	}
	return out
}

func itoa(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

// Appointments

// AppointmentKind edits appointments. The template splits the start/end
// timestamps into one date field and two time fields.
type AppointmentKind struct{}

func (AppointmentKind) ItemName() string   { return "Event" }
func (AppointmentKind) Noun() string       { return "appointment" }
func (AppointmentKind) Resource() string   { return config.ResourceAppointments }
func (AppointmentKind) IDKey() string      { return "appointment_id" }
func (AppointmentKind) Template() Template { return AppointmentTemplate() }

func (AppointmentKind) Rules() map[string]string {
	return map[string]string{
		"date":          "omitempty,datetime=2006-01-02",
		"start_time":    "omitempty,datetime=15:04",
		"end_time":      "omitempty,datetime=15:04",
		"price_charged": "omitempty,numeric",
	}
}

// Payload removes the date field and prefixes it onto start_time and
// end_time ("YYYY-MM-DD HH:MM").
func (AppointmentKind) Payload(v Values) (map[string]any, error) {
	out := v.Map()
	date := v.Get("date")
	delete(out, "date")
	out["start_time"] = date + " " + v.Get("start_time")
	out["end_time"] = date + " " + v.Get("end_time")

	if p := strings.TrimSpace(v.Get("price_charged")); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("price_charged: %w", err)
		}
		out["price_charged"] = d.StringFixed(2)
	}
	if _, ok := out["services"]; !ok {
		out["services"] = []string{}
	}
	return out, nil
}

// AppointmentRecord seeds the appointment form from a projected event.
type AppointmentRecord struct {
	Event model.CalendarEvent
}

func (r AppointmentRecord) RecordID() int64 { return r.Event.Appointment.ID }

func (r AppointmentRecord) Seed(t Template) Values {
	ap := r.Event.Appointment
	price := ""
	if !ap.PriceCharged.IsZero() {
		price = ap.PriceCharged.StringFixed(2)
	}
	out := seedSameNamed(t, map[string]string{
		"client_id":     itoa(ap.ClientID),
		"user_id":       itoa(ap.UserID),
		"notes":         ap.Notes,
		"price_charged": price,
		// The shared date comes from the composite timestamp once; the
		// time fields keep only hour:minute.
		"date":       ap.StartTime.DatePart(),
		"start_time": ap.StartTime.ClockPart(),
		"end_time":   ap.EndTime.ClockPart(),
	})
	if _, ok := out["services"]; ok {
		ids := make([]string, 0, len(r.Event.Services))
		for _, id := range r.Event.ServiceIDs() {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		out["services"] = List(ids...)
	}
	return out
}

// Clients

// ClientKind edits clients. Phone numbers that parse for PhoneRegion are
// normalized to E.164 before submit.
type ClientKind struct {
	PhoneRegion string
}

func (ClientKind) ItemName() string   { return "Client" }
func (ClientKind) Noun() string       { return "client" }
func (ClientKind) Resource() string   { return config.ResourceClients }
func (ClientKind) IDKey() string      { return "client_id" }
func (ClientKind) Template() Template { return ClientTemplate() }

func (ClientKind) Rules() map[string]string {
	return map[string]string{
		"contact_email": "omitempty,email",
	}
}

func (k ClientKind) Payload(v Values) (map[string]any, error) {
	out := v.Map()
	if phone := strings.TrimSpace(v.Get("contact_phone")); phone != "" {
		out["contact_phone"] = NormalizePhone(phone, k.PhoneRegion)
	}
	return out, nil
}

// NormalizePhone formats phone as E.164 when it is a valid number for
// region, and returns it unchanged otherwise.
func NormalizePhone(phone, region string) string {
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// ClientRecord seeds the client form.
type ClientRecord struct {
	Client model.Client
}

func (r ClientRecord) RecordID() int64 { return r.Client.ID }

func (r ClientRecord) Seed(t Template) Values {
	c := r.Client
	return seedSameNamed(t, map[string]string{
		"name":          c.Name,
		"contact_phone": c.ContactPhone,
		"contact_email": c.ContactEmail,
		"notes":         c.Notes,
	})
}

// ErrUnknownKind is returned by KindFor for unsupported resources.
var ErrUnknownKind = errors.New("no editor for resource")

// KindFor returns the Kind editing resource.
func KindFor(resource, phoneRegion string) (Kind, error) {
	switch resource {
	case config.ResourceAppointments:
		return AppointmentKind{}, nil
	case config.ResourceClients:
		return ClientKind{PhoneRegion: phoneRegion}, nil
	default:
		return nil, fmt.Errorf("%q: %w", resource, ErrUnknownKind)
	}
}
