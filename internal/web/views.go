package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "schedweb/internal/log"
	"schedweb/internal/model"
	"schedweb/internal/schedule"
	"schedweb/internal/store"
)

const viewCookie = "schedweb_view"

// flash is a one-shot message shown on the next page render.
type flash struct {
	Message string
	IsError bool
}

// view is the server-side state of one browser: its filter inputs, the
// preferred calendar layout and a pending flash message.
type view struct {
	id string

	mu       sync.Mutex
	filter   *schedule.Filter
	version  uint64
	synced   bool
	calendar string
	flash    *flash
	lastSeen time.Time
}

// sync feeds the filter a new appointment collection when the store has
// replaced it since the last call.
func (v *view) sync(snap store.Snapshot) {
	if v.synced && v.version == snap.AppointmentsVersion {
		return
	}
	v.filter.SetAppointments(snap.Appointments)
	v.version = snap.AppointmentsVersion
	v.synced = true
}

// events projects the view's filtered appointments.
func (v *view) events(snap store.Snapshot) []model.CalendarEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sync(snap)
	return schedule.Project(snap, v.filter.Filtered())
}

func (v *view) filterByUser(snap store.Snapshot, userID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sync(snap)
	v.filter.FilterByUser(userID)
}

func (v *view) filterByClient(snap store.Snapshot, name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sync(snap)
	v.filter.FilterByClient(name, snap.Clients)
}

func (v *view) clearFilter(snap store.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sync(snap)
	v.filter.Clear()
}

// inputs returns the stored filter values for redisplay.
func (v *view) inputs() (userID int64, hasUser bool, client string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	userID, hasUser = v.filter.UserValue()
	return userID, hasUser, v.filter.ClientValue()
}

func (v *view) calendarLayout() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calendar
}

func (v *view) setCalendarLayout(layout string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calendar = layout
}

func (v *view) setFlash(f flash) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flash = &f
}

// takeFlash returns and clears the pending flash.
func (v *view) takeFlash() *flash {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.flash
	v.flash = nil
	return f
}

// viewRegistry holds every live view keyed by its cookie id.
type viewRegistry struct {
	mu       sync.Mutex
	views    map[string]*view
	ttl      time.Duration
	mode     schedule.Mode
	calendar string
}

func newViewRegistry(ttl time.Duration, mode schedule.Mode, calendar string) *viewRegistry {
	return &viewRegistry{
		views:    map[string]*view{},
		ttl:      ttl,
		mode:     mode,
		calendar: calendar,
	}
}

// get returns the view for id and marks it seen.
func (vr *viewRegistry) get(id string, now time.Time) (*view, bool) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	v, ok := vr.views[id]
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
	return v, true
}

func (vr *viewRegistry) create(now time.Time) *view {
	v := &view{
		id:       uuid.NewString(),
		filter:   schedule.NewFilter(vr.mode),
		calendar: vr.calendar,
		lastSeen: now,
	}
	vr.mu.Lock()
	vr.views[v.id] = v
	vr.mu.Unlock()
	return v
}

func (vr *viewRegistry) len() int {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	return len(vr.views)
}

// sweep drops views idle for longer than the TTL and returns how many
// were removed.
func (vr *viewRegistry) sweep(now time.Time) int {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	removed := 0
	for id, v := range vr.views {
		v.mu.Lock()
		idle := now.Sub(v.lastSeen)
		v.mu.Unlock()
		if idle > vr.ttl {
			delete(vr.views, id)
			removed++
		}
	}
	return removed
}

// viewFor returns the caller's view, creating one (and its cookie) when
// the request carries no known id.
func (s *Server) viewFor(w http.ResponseWriter, r *http.Request) *view {
	now := time.Now()
	if c, err := r.Cookie(viewCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			if v, ok := s.views.get(c.Value, now); ok {
				return v
			}
		}
	}

	v := s.views.create(now)
	http.SetCookie(w, &http.Cookie{
		Name:     viewCookie,
		Value:    v.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	appLog.Debug("view created", "view", v.id)
	return v
}

// SweepViews drops idle views. It is run periodically by the caller.
func (s *Server) SweepViews() {
	if n := s.views.sweep(time.Now()); n > 0 {
		appLog.Info("idle views swept", "removed", n, "remaining", s.views.len())
	}
}
