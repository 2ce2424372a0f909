package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedweb/internal/auth"
	"schedweb/internal/backend"
	"schedweb/internal/config"
	"schedweb/internal/schedule"
	"schedweb/internal/store"
)

type mutation struct {
	method   string
	resource string
	body     map[string]any
}

// fakeBackend imitates the REST backend's envelope and encodings.
type fakeBackend struct {
	mu             sync.Mutex
	data           map[string]string
	failing        map[string]bool
	mutationStatus string
	mutations      []mutation
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data: map[string]string{
			"users":   jsonString(`[{"id":10,"name":"Ana"},{"id":11,"name":"Ben"}]`),
			"clients": jsonString(`[{"id":1,"name":"Cleo Park","contact_email":"cleo@example.com"},{"id":2,"name":"Dev Rao"}]`),
			"services": `[{"id":5,"name":"Cut"},{"id":6,"name":"Color"}]`,
			"appointments": `[
				{"id":1,"client_id":1,"user_id":10,"start_time":"Wed, 01 May 2024 09:00:00 GMT","end_time":"Wed, 01 May 2024 10:00:00 GMT","notes":"**bring** samples","price_charged":"45.00"},
				{"id":2,"client_id":2,"user_id":11,"start_time":"Thu, 02 May 2024 09:00:00 GMT","end_time":"Thu, 02 May 2024 09:30:00 GMT","notes":"","price_charged":null}
			]`,
			"appointment_services": jsonString(`[{"appointment_id":1,"service_id":5},{"appointment_id":1,"service_id":6}]`),
		},
		failing: map[string]bool{},
	}
}

func (fb *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	resource := strings.TrimPrefix(r.URL.Path, "/")
	if r.Method != http.MethodGet {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mutations = append(fb.mutations, mutation{method: r.Method, resource: resource, body: body})
		status := fb.mutationStatus
		if status == "" {
			status = "200"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "data": "ok"})
		return
	}

	if fb.failing[resource] {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "500"})
		return
	}
	data, ok := fb.data[resource]
	if !ok {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, `{"status":"200","data":%s}`, data)
}

func (fb *fakeBackend) setFailing(resource string, fail bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failing[resource] = fail
}

func (fb *fakeBackend) recorded() []mutation {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]mutation(nil), fb.mutations...)
}

type harness struct {
	fb     *fakeBackend
	store  *store.Store
	srv    *Server
	url    string
	client *http.Client
}

func newHarness(t *testing.T, setup func(fb *fakeBackend, cfg *config.Config)) *harness {
	t.Helper()
	fb := newFakeBackend()
	api := httptest.NewServer(fb)
	t.Cleanup(api.Close)

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = api.URL
	if setup != nil {
		setup(fb, cfg)
	}

	bc := backend.NewClient(cfg.Backend)
	st := store.New(bc)
	t.Cleanup(st.Close)
	// Some tests start with a failing backend on purpose.
	_ = st.Refresh(context.Background())

	srv, err := NewServer(cfg, Deps{Store: st, Actions: bc, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		fb:    fb,
		store: st,
		srv:   srv,
		url:   ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.url+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

type feed struct {
	Events []struct {
		ID            int64  `json:"id"`
		Title         string `json:"title"`
		ExtendedProps struct {
			Description string   `json:"description"`
			Services    []string `json:"services"`
		} `json:"extendedProps"`
	} `json:"events"`
	FetchError string `json:"fetch_error"`
}

func (h *harness) feed(t *testing.T) feed {
	t.Helper()
	resp, body := h.get(t, "/api/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f feed
	require.NoError(t, json.Unmarshal([]byte(body), &f))
	return f
}

func feedIDs(f feed) []int64 {
	out := make([]int64, 0, len(f.Events))
	for _, e := range f.Events {
		out = append(out, e.ID)
	}
	return out
}

func TestIndexRendersEventsByDay(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/?view=list")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Wednesday, May 1, 2024")
	assert.Contains(t, body, "Thursday, May 2, 2024")
	assert.Contains(t, body, "Cleo Park")
	assert.Contains(t, body, "Reason: Cut, Color")
	assert.Contains(t, body, "<strong>bring</strong> samples")
	assert.Contains(t, body, `href="/appointments/1"`)
	assert.NotContains(t, body, "Try Again")

	var hasViewCookie bool
	for _, c := range resp.Cookies() {
		hasViewCookie = hasViewCookie || c.Name == viewCookie
	}
	assert.True(t, hasViewCookie)
}

func TestIndexMonthNavigation(t *testing.T) {
	h := newHarness(t, nil)

	_, body := h.get(t, "/?view=month&date=2024-05-15")
	assert.Contains(t, body, "May 2024")
	assert.Contains(t, body, "Cleo Park")
	assert.Contains(t, body, "date=2024-04-01")
	assert.Contains(t, body, "date=2024-06-01")

	_, body = h.get(t, "/?view=month&date=2024-06-15")
	assert.Contains(t, body, "No appointments in this period.")
}

func TestEventsFeedIsProjected(t *testing.T) {
	h := newHarness(t, nil)

	f := h.feed(t)
	require.Equal(t, []int64{1, 2}, feedIDs(f))
	assert.Equal(t, "Cleo Park", f.Events[0].Title)
	assert.Equal(t, "Client: Cleo Park\nUser: Ana\nReason: Cut, Color", f.Events[0].ExtendedProps.Description)
	assert.Equal(t, "Client: Dev Rao\nUser: Ben\nReason: ", f.Events[1].ExtendedProps.Description)
	assert.Empty(t, f.Events[1].ExtendedProps.Services)
}

func TestFiltersArePerViewAndLegacy(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.post(t, "/filter/user", url.Values{"user_id": {"11"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, []int64{2}, feedIDs(h.feed(t)))

	// The client filter replaces the user predicate in legacy mode.
	h.post(t, "/filter/client", url.Values{"client": {"cleo park"}})
	assert.Equal(t, []int64{1}, feedIDs(h.feed(t)))

	fresh := &harness{url: h.url, client: &http.Client{}}
	assert.Equal(t, []int64{1, 2}, feedIDs(fresh.feed(t)), "a fresh browser is unfiltered")

	h.post(t, "/filter/clear", nil)
	assert.Equal(t, []int64{1, 2}, feedIDs(h.feed(t)))
}

func TestConjunctiveFilterMode(t *testing.T) {
	h := newHarness(t, func(_ *fakeBackend, cfg *config.Config) {
		cfg.FilterMode = config.FilterModeConjunctive
	})

	h.post(t, "/filter/user", url.Values{"user_id": {"11"}})
	h.post(t, "/filter/client", url.Values{"client": {"Cleo Park"}})
	assert.Empty(t, h.feed(t).Events)
}

func TestUnknownClientFilterMatchesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/filter/client", url.Values{"client": {"Nobody"}})
	assert.Empty(t, h.feed(t).Events)
}

func TestFetchErrorBannerAndRetry(t *testing.T) {
	h := newHarness(t, func(fb *fakeBackend, _ *config.Config) {
		fb.setFailing("users", true)
	})

	_, body := h.get(t, "/")
	assert.Contains(t, body, "Error: Could not retrieve data.")
	assert.Contains(t, body, "Try Again")
	assert.Equal(t, store.FetchErrorMessage, h.feed(t).FetchError)

	h.fb.setFailing("users", false)
	resp, _ := h.post(t, "/refresh", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = h.get(t, "/")
	assert.NotContains(t, body, "Error: Could not retrieve data.")
}

func TestAddAppointment(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/appointments/new")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Add Event")

	resp, _ = h.post(t, "/appointments", url.Values{
		"client_id":     {"1"},
		"user_id":       {"10"},
		"date":          {"2024-05-03"},
		"start_time":    {"09:00"},
		"end_time":      {"10:00"},
		"services":      {"5"},
		"notes":         {"first visit"},
		"price_charged": {"30"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	muts := h.fb.recorded()
	require.Len(t, muts, 1)
	m := muts[0]
	assert.Equal(t, http.MethodPost, m.method)
	assert.Equal(t, "appointments", m.resource)
	assert.Equal(t, "2024-05-03 09:00", m.body["start_time"])
	assert.Equal(t, "2024-05-03 10:00", m.body["end_time"])
	assert.Equal(t, []any{"5"}, m.body["services"])
	assert.Equal(t, "30.00", m.body["price_charged"])
	assert.NotContains(t, m.body, "date")

	_, body = h.get(t, "/")
	assert.Contains(t, body, "Added appointment")

	_, body = h.get(t, "/")
	assert.NotContains(t, body, "Added appointment", "flash is shown once")
}

func TestEditAppointmentSeedsForm(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/appointments/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Edit Event")
	assert.Contains(t, body, `value="2024-05-01"`)
	assert.Contains(t, body, `value="09:00"`)
	assert.Contains(t, body, `value="10:00"`)
	assert.Contains(t, body, `action="/appointments/1/delete"`)
}

func TestUpdateFailureKeepsEditorOpen(t *testing.T) {
	h := newHarness(t, func(fb *fakeBackend, _ *config.Config) {
		fb.mutationStatus = "500"
	})

	resp, body := h.post(t, "/appointments/1", url.Values{
		"client_id":  {"1"},
		"user_id":    {"10"},
		"date":       {"2024-05-01"},
		"start_time": {"09:00"},
		"end_time":   {"10:00"},
		"notes":      {"changed note"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Error: Could not update appointment.")
	assert.Contains(t, body, "changed note")

	muts := h.fb.recorded()
	require.Len(t, muts, 1)
	assert.Equal(t, http.MethodPut, muts[0].method)
	assert.Equal(t, float64(1), muts[0].body["appointment_id"])
}

func TestRequiredFieldSendsNothing(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/clients", url.Values{"name": {""}, "contact_email": {"x@example.com"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "has-error")
	assert.Empty(t, h.fb.recorded())
}

func TestDeleteClient(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.post(t, "/clients/2/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/clients", resp.Header.Get("Location"))

	muts := h.fb.recorded()
	require.Len(t, muts, 1)
	assert.Equal(t, http.MethodDelete, muts[0].method)
	assert.Equal(t, map[string]any{"client_id": float64(2)}, muts[0].body)

	_, body := h.get(t, "/clients")
	assert.Contains(t, body, "Deleted client")
}

func TestUnknownRecordIs404(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.get(t, "/appointments/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.get(t, "/clients/abc")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.post(t, "/appointments/999/delete", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, h.fb.recorded())
}

func TestClientsPage(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/clients")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, strings.Index(body, "Cleo Park"), strings.Index(body, "Dev Rao"))
	assert.Contains(t, body, `href="/clients/1"`)
}

func TestClientFormHintsExistingNames(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/clients/new")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="name" value="" list="client-names"`)
	assert.Contains(t, body, `<datalist id="client-names">`)
	assert.Contains(t, body, `<option value="Cleo Park">`)
	assert.NotContains(t, body, "novalidate")
}

func TestEditorRendersExtraAttributesOnEveryKind(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/appointments/new")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="notes" maxlength="256" rows="4"`)
	assert.Contains(t, body, `name="price_charged" value="" inputmode="decimal"`)
}

func TestICSExport(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/calendar.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Contains(t, body, "BEGIN:VEVENT")
	assert.Contains(t, body, "UID:appointment-1@schedweb")
	assert.Contains(t, body, "UID:appointment-2@schedweb")
}

func TestBasicAuth(t *testing.T) {
	h := newHarness(t, func(_ *fakeBackend, cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})

	resp, _ := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.get(t, "/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, h.url+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "pw")
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasicAuthWithPasswordHash(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	h := newHarness(t, func(_ *fakeBackend, cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "ignored", PasswordHash: hash}
	})

	for pass, want := range map[string]int{
		"pw":      http.StatusOK,
		"ignored": http.StatusUnauthorized,
	} {
		req, err := http.NewRequest(http.MethodGet, h.url+"/", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", pass)
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, pass)
	}
}

func TestCSRFProtectsPosts(t *testing.T) {
	h := newHarness(t, func(_ *fakeBackend, cfg *config.Config) {
		cfg.CSRFKey = strings.Repeat("ab", 32)
	})

	_, body := h.get(t, "/")
	assert.Contains(t, body, "gorilla.csrf.Token")

	resp, _ := h.post(t, "/filter/clear", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, "/clients/2/delete", nil)

	_, body := h.get(t, "/metrics")
	assert.Contains(t, body, "schedweb_web_views")
	assert.Contains(t, body, `schedweb_web_submissions_total{outcome="ok",resource="clients",verb="delete"} 1`)
}

func TestSweepDropsIdleViews(t *testing.T) {
	vr := newViewRegistry(time.Minute, schedule.ModeLegacy, "month")
	now := time.Now()
	idle := vr.create(now.Add(-2 * time.Minute))
	fresh := vr.create(now)

	assert.Equal(t, 1, vr.sweep(now))
	_, ok := vr.get(idle.id, now)
	assert.False(t, ok)
	_, ok = vr.get(fresh.id, now)
	assert.True(t, ok)
}

func TestPeriodFor(t *testing.T) {
	anchor := time.Date(2024, 5, 15, 13, 0, 0, 0, time.UTC) // a Wednesday

	w := periodFor(layoutWeek, anchor)
	assert.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), w.from)
	assert.Equal(t, time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC), w.to)
	assert.Equal(t, "May 12 - May 18, 2024", w.label)

	m := periodFor(layoutMonth, anchor)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), m.from)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), m.prev)

	assert.True(t, periodFor(layoutList, anchor).all())
}
