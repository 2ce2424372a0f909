package web

import (
	"cmp"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"schedweb/internal/ics"
	appLog "schedweb/internal/log"
	"schedweb/internal/model"
	"schedweb/internal/store"
)

// Calendar layouts.
const (
	layoutMonth = "month"
	layoutWeek  = "week"
	layoutList  = "list"
)

// pageBase is shared by every rendered page.
type pageBase struct {
	Title string
	Flash *flash
	CSRF  template.HTML
}

func (s *Server) base(r *http.Request, v *view, title string) pageBase {
	b := pageBase{Title: title, CSRF: csrf.TemplateField(r)}
	if v != nil {
		b.Flash = v.takeFlash()
	}
	return b
}

type selectOption struct {
	Value    string
	Label    string
	Selected bool
}

type layoutLink struct {
	Label  string
	URL    string
	Active bool
}

type eventView struct {
	ID          int64
	Title       string
	Start       string
	End         string
	Description string
	Notes       string
	EditURL     string
}

type dayGroup struct {
	Label  string
	Events []eventView
}

type indexPage struct {
	pageBase
	FetchError  string
	Users       []selectOption
	ClientNames []string
	ClientValue string
	Layouts     []layoutLink
	Period      string
	PrevURL     string
	NextURL     string
	NoData      bool
	Days        []dayGroup
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	snap := s.store.Snapshot()

	q := r.URL.Query()
	layout := v.calendarLayout()
	switch l := q.Get("view"); l {
	case layoutMonth, layoutWeek, layoutList:
		layout = l
		v.setCalendarLayout(l)
	}

	anchor := time.Now().In(s.loc)
	if d := q.Get("date"); d != "" {
		if t, err := time.ParseInLocation("2006-01-02", d, s.loc); err == nil {
			anchor = t
		}
	}
	p := periodFor(layout, anchor)

	events := v.events(snap)
	userID, hasUser, clientName := v.inputs()

	page := indexPage{
		pageBase:    s.base(r, v, "Schedule"),
		FetchError:  s.store.FetchError(),
		Users:       userOptions(snap, userID, hasUser),
		ClientNames: clientNames(snap),
		ClientValue: clientName,
		Layouts:     layoutLinks(layout, anchor),
		Period:      p.label,
		NoData:      len(snap.Appointments) == 0,
		Days:        s.groupByDay(events, p),
	}
	if !p.all() {
		page.PrevURL = indexURL(layout, p.prev)
		page.NextURL = indexURL(layout, p.next)
	}
	s.pages.render(w, http.StatusOK, "index", page)
}

// period is the visible range of the calendar. A zero from/to means all
// events.
type period struct {
	from, to   time.Time
	prev, next time.Time
	label      string
}

func (p period) all() bool { return p.from.IsZero() }

func (p period) contains(t time.Time) bool {
	if p.all() {
		return true
	}
	return !t.Before(p.from) && t.Before(p.to)
}

func periodFor(layout string, anchor time.Time) period {
	loc := anchor.Location()
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, loc)
	switch layout {
	case layoutWeek:
		from := day.AddDate(0, 0, -int(day.Weekday()))
		to := from.AddDate(0, 0, 7)
		return period{
			from: from, to: to,
			prev: from.AddDate(0, 0, -7), next: to,
			label: from.Format("Jan 2") + " - " + to.AddDate(0, 0, -1).Format("Jan 2, 2006"),
		}
	case layoutList:
		return period{label: "All appointments"}
	default:
		from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		to := from.AddDate(0, 1, 0)
		return period{
			from: from, to: to,
			prev: from.AddDate(0, -1, 0), next: to,
			label: from.Format("January 2006"),
		}
	}
}

// groupByDay buckets the events inside p by their local start date.
// Within a day events are ordered by start time; equal starts keep the
// projection order.
func (s *Server) groupByDay(events []model.CalendarEvent, p period) []dayGroup {
	inRange := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if p.contains(ev.Start.In(s.loc)) {
			inRange = append(inRange, ev)
		}
	}
	slices.SortStableFunc(inRange, func(a, b model.CalendarEvent) int {
		return a.Start.Compare(b.Start)
	})

	var days []dayGroup
	lastKey := ""
	for _, ev := range inRange {
		start := ev.Start.In(s.loc)
		key := start.Format("2006-01-02")
		if key != lastKey {
			days = append(days, dayGroup{Label: start.Format("Monday, January 2, 2006")})
			lastKey = key
		}
		g := &days[len(days)-1]
		g.Events = append(g.Events, eventView{
			ID:          ev.Appointment.ID,
			Title:       ev.Title,
			Start:       start.Format("15:04"),
			End:         ev.End.In(s.loc).Format("15:04"),
			Description: ev.Description,
			Notes:       ev.Appointment.Notes,
			EditURL:     "/appointments/" + strconv.FormatInt(ev.Appointment.ID, 10),
		})
	}
	return days
}

func indexURL(layout string, date time.Time) string {
	q := url.Values{"view": {layout}}
	if !date.IsZero() {
		q.Set("date", date.Format("2006-01-02"))
	}
	return "/?" + q.Encode()
}

func layoutLinks(active string, anchor time.Time) []layoutLink {
	out := make([]layoutLink, 0, 3)
	for _, l := range []string{layoutMonth, layoutWeek, layoutList} {
		out = append(out, layoutLink{
			Label:  strings.ToUpper(l[:1]) + l[1:],
			URL:    indexURL(l, anchor),
			Active: l == active,
		})
	}
	return out
}

func userOptions(snap store.Snapshot, selected int64, hasSelected bool) []selectOption {
	users := slices.Clone(snap.Users)
	slices.SortStableFunc(users, func(a, b model.User) int { return cmp.Compare(a.Name, b.Name) })
	out := make([]selectOption, 0, len(users))
	for _, u := range users {
		out = append(out, selectOption{
			Value:    strconv.FormatInt(u.ID, 10),
			Label:    u.Name,
			Selected: hasSelected && u.ID == selected,
		})
	}
	return out
}

func clientNames(snap store.Snapshot) []string {
	names := make([]string, 0, len(snap.Clients))
	for _, c := range snap.Clients {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Filters

func (s *Server) handleFilterUser(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	snap := s.store.Snapshot()
	raw := strings.TrimSpace(r.PostFormValue("user_id"))
	// The blank choice clears the filter.
	if raw == "" {
		v.clearFilter(snap)
	} else if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		v.filterByUser(snap, id)
	} else {
		v.setFlash(flash{Message: "Unknown user.", IsError: true})
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func (s *Server) handleFilterClient(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	v.filterByClient(s.store.Snapshot(), strings.TrimSpace(r.PostFormValue("client")))
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func (s *Server) handleFilterClear(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	v.clearFilter(s.store.Snapshot())
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// handleRefresh re-runs every fetch. Failures surface through the banner.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Refresh(r.Context()); err != nil {
		appLog.Error("manual refresh failed", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// backTo returns the same-origin page the form was posted from, or "/".
func backTo(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || ref.Path != "/" {
		return "/"
	}
	return ref.RequestURI()
}

// Feeds

// eventDTO is the JSON shape of one calendar event.
type eventDTO struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	URL           string         `json:"url"`
	ExtendedProps eventDetailDTO `json:"extendedProps"`
}

type eventDetailDTO struct {
	Description  string   `json:"description"`
	Client       string   `json:"client"`
	User         string   `json:"user"`
	Services     []string `json:"services"`
	Notes        string   `json:"notes"`
	PriceCharged string   `json:"price_charged"`
}

type eventsResponse struct {
	Events     []eventDTO `json:"events"`
	FetchError string     `json:"fetch_error,omitempty"`
}

// handleEvents returns the caller's filtered events in projection order.
//
// GET /api/events?start=...&end=...
//   - start, end: optional RFC 3339 or YYYY-MM-DD bounds; events
//     overlapping [start, end) are returned.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	events := v.events(s.store.Snapshot())

	q := r.URL.Query()
	from, errFrom := s.parseBound(q.Get("start"))
	to, errTo := s.parseBound(q.Get("end"))
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, "invalid start or end")
		return
	}

	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		if !from.IsZero() && !ev.End.After(from) {
			continue
		}
		if !to.IsZero() && !ev.Start.Before(to) {
			continue
		}
		price := ""
		if !ev.Appointment.PriceCharged.IsZero() {
			price = ev.Appointment.PriceCharged.StringFixed(2)
		}
		dtos = append(dtos, eventDTO{
			ID:    ev.Appointment.ID,
			Title: ev.Title,
			Start: ev.Start,
			End:   ev.End,
			URL:   "/appointments/" + strconv.FormatInt(ev.Appointment.ID, 10),
			ExtendedProps: eventDetailDTO{
				Description:  ev.Description,
				Client:       ev.Client.Name,
				User:         ev.User.Name,
				Services:     ev.ServiceNames,
				Notes:        ev.Appointment.Notes,
				PriceCharged: price,
			},
		})
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: dtos, FetchError: s.store.FetchError()})
}

func (s *Server) parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bound %q: %w", v, err)
	}
	return t, nil
}

// handleICS exports the caller's filtered events as iCalendar.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	events := v.events(s.store.Snapshot())

	scheme := "http"
	if r.TLS != nil || s.cfg.SecureCookies {
		scheme = "https"
	}
	editURL := func(id int64) string {
		return scheme + "://" + r.Host + "/appointments/" + strconv.FormatInt(id, 10)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	if err := ics.Write(w, "Appointments", events, editURL); err != nil {
		appLog.Error("ics response failed", err)
	}
}

// Clients

type clientsPage struct {
	pageBase
	Clients []model.Client
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)
	snap := s.store.Snapshot()
	clients := slices.Clone(snap.Clients)
	slices.SortStableFunc(clients, func(a, b model.Client) int { return cmp.Compare(a.Name, b.Name) })
	s.pages.render(w, http.StatusOK, "clients", clientsPage{
		pageBase: s.base(r, v, "Clients"),
		Clients:  clients,
	})
}
