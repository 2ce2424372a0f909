package schedule

import (
	"slices"

	"golang.org/x/text/cases"

	"schedweb/internal/model"
)

// Mode selects how the user and client predicates combine.
type Mode string

const (
	// ModeLegacy applies only the most recently set predicate. The other
	// input keeps its stored value but does not narrow the set.
	ModeLegacy Mode = "legacy"
	// ModeConjunctive applies every stored predicate together.
	ModeConjunctive Mode = "conjunctive"
)

type predicate int

const (
	predNone predicate = iota
	predUser
	predClient
)

// Filter narrows the appointment set by user and/or client.
// It is not safe for concurrent use; callers guard it.
type Filter struct {
	mode Mode

	all      []model.Appointment
	filtered []model.Appointment

	userID  int64
	hasUser bool

	clientName  string
	clientID    int64
	hasClient   bool // a client filter value is stored
	clientKnown bool // the stored name resolved to a client

	last predicate
}

// NewFilter returns a Filter with no predicates. Unknown modes behave as
// ModeLegacy.
func NewFilter(mode Mode) *Filter {
	if mode != ModeConjunctive {
		mode = ModeLegacy
	}
	return &Filter{mode: mode}
}

// Mode reports the combination mode.
func (f *Filter) Mode() Mode { return f.mode }

// SetAppointments replaces the full appointment collection and re-applies
// the last applied predicate(s).
func (f *Filter) SetAppointments(all []model.Appointment) {
	f.all = slices.Clone(all)
	f.apply()
}

// FilterByUser stores the user value and recomputes the filtered set.
func (f *Filter) FilterByUser(userID int64) {
	f.userID = userID
	f.hasUser = true
	f.last = predUser
	f.apply()
}

// FilterByClient stores the client name, resolves it against clients by
// case-insensitive exact match and recomputes the filtered set. A name that
// matches no client yields an empty filtered set.
func (f *Filter) FilterByClient(name string, clients []model.Client) {
	f.clientName = name
	f.hasClient = true
	f.clientID, f.clientKnown = ClientIDByName(name, clients)
	f.last = predClient
	f.apply()
}

// Clear resets both inputs and restores the full collection.
func (f *Filter) Clear() {
	f.userID, f.hasUser = 0, false
	f.clientName, f.clientID, f.hasClient, f.clientKnown = "", 0, false, false
	f.last = predNone
	f.apply()
}

// Filtered returns a copy of the filtered set in source order.
func (f *Filter) Filtered() []model.Appointment {
	return slices.Clone(f.filtered)
}

// UserValue returns the stored user filter input.
func (f *Filter) UserValue() (int64, bool) { return f.userID, f.hasUser }

// ClientValue returns the stored client filter input.
func (f *Filter) ClientValue() string { return f.clientName }

func (f *Filter) apply() {
	var keep func(model.Appointment) bool
	switch f.mode {
	case ModeConjunctive:
		keep = func(a model.Appointment) bool {
			return (!f.hasUser || f.matchUser(a)) && (!f.hasClient || f.matchClient(a))
		}
	default:
		switch f.last {
		case predUser:
			keep = f.matchUser
		case predClient:
			keep = f.matchClient
		}
	}

	if keep == nil {
		f.filtered = slices.Clone(f.all)
		return
	}
	out := make([]model.Appointment, 0, len(f.all))
	for _, a := range f.all {
		if keep(a) {
			out = append(out, a)
		}
	}
	f.filtered = out
}

func (f *Filter) matchUser(a model.Appointment) bool {
	return a.UserID == f.userID
}

func (f *Filter) matchClient(a model.Appointment) bool {
	return f.clientKnown && a.ClientID == f.clientID
}

// ClientIDByName returns the id of the first client whose name equals name
// ignoring case.
func ClientIDByName(name string, clients []model.Client) (int64, bool) {
	c, ok := ClientByName(name, clients)
	return c.ID, ok
}

// ClientByName returns the first client whose name equals name ignoring
// case.
func ClientByName(name string, clients []model.Client) (model.Client, bool) {
	fold := cases.Fold()
	want := fold.String(name)
	for _, c := range clients {
		if fold.String(c.Name) == want {
			return c, true
		}
	}
	return model.Client{}, false
}
