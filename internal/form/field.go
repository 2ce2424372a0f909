// Package form renders and collects editable forms from declarative field
// templates and submits the collected values to the backend.
package form

// FieldKind names the input a field renders as.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextArea FieldKind = "textarea"
	KindSelect   FieldKind = "select"
	KindDate     FieldKind = "date"
	KindTime     FieldKind = "time"
)

// Common holds the attributes every field kind shares.
type Common struct {
	Label    string
	Name     string
	Required bool
	// Attrs are extra HTML attributes rendered verbatim, e.g. placeholder.
	Attrs map[string]string
}

// Field is one entry of a Template. The concrete types below are the only
// implementations; each carries just the attributes its kind uses.
type Field interface {
	Kind() FieldKind
	common() Common
}

// TextField is a single-line input. DataList names a <datalist> used for
// hinting.
type TextField struct {
	Common
	DataList string
}

// TextAreaField is a multi-line input.
type TextAreaField struct {
	Common
	MaxLength int
}

// SelectField draws its options from the named collection. A blank leading
// option is rendered unless SkipEmpty is set.
type SelectField struct {
	Common
	Source    string
	SkipEmpty bool
	Multiple  bool
}

// DateField is a native date input (YYYY-MM-DD).
type DateField struct {
	Common
}

// TimeField is a native time input (HH:MM).
type TimeField struct {
	Common
}

func (f TextField) Kind() FieldKind     { return KindText }
func (f TextAreaField) Kind() FieldKind { return KindTextArea }
func (f SelectField) Kind() FieldKind   { return KindSelect }
func (f DateField) Kind() FieldKind     { return KindDate }
func (f TimeField) Kind() FieldKind     { return KindTime }

func (f TextField) common() Common     { return f.Common }
func (f TextAreaField) common() Common { return f.Common }
func (f SelectField) common() Common   { return f.Common }
func (f DateField) common() Common     { return f.Common }
func (f TimeField) common() Common     { return f.Common }

// Template is an ordered list of fields.
type Template []Field

// Names returns the field names in template order.
func (t Template) Names() []string {
	out := make([]string, 0, len(t))
	for _, f := range t {
		out = append(out, f.common().Name)
	}
	return out
}

// isMulti reports whether f collects a list of values.
func isMulti(f Field) bool {
	s, ok := f.(SelectField)
	return ok && s.Multiple
}

// DataListClientNames is the datalist of existing client names offered
// while typing a client name.
const DataListClientNames = "client-names"

// Collection keys used by select fields.
const (
	SourceClients  = "clients"
	SourceUsers    = "users"
	SourceServices = "services"
)

// AppointmentTemplate is the appointment editor's form.
func AppointmentTemplate() Template {
	return Template{
		SelectField{Common: Common{Label: "Client", Name: "client_id", Required: true}, Source: SourceClients},
		SelectField{Common: Common{Label: "User", Name: "user_id", Required: true}, Source: SourceUsers},
		DateField{Common: Common{Label: "Date", Name: "date", Required: true}},
		TimeField{Common: Common{Label: "Start Time", Name: "start_time", Required: true}},
		TimeField{Common: Common{Label: "End Time", Name: "end_time", Required: true}},
		SelectField{Common: Common{Label: "Services", Name: "services"}, Source: SourceServices, SkipEmpty: true, Multiple: true},
		TextAreaField{Common: Common{Label: "Notes", Name: "notes", Attrs: map[string]string{"rows": "4"}}, MaxLength: 256},
		TextField{Common: Common{Label: "Price Charged", Name: "price_charged", Attrs: map[string]string{"inputmode": "decimal"}}},
	}
}

// ClientTemplate is the client editor's form.
func ClientTemplate() Template {
	return Template{
		TextField{Common: Common{Label: "Name", Name: "name", Required: true}, DataList: DataListClientNames},
		TextField{Common: Common{Label: "Phone", Name: "contact_phone", Attrs: map[string]string{"inputmode": "tel"}}},
		TextField{Common: Common{Label: "Email", Name: "contact_email", Required: true, Attrs: map[string]string{"inputmode": "email"}}},
		TextAreaField{Common: Common{Label: "Notes", Name: "notes"}, MaxLength: 256},
	}
}
