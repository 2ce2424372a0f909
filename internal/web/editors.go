package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"schedweb/internal/config"
	"schedweb/internal/form"
	appLog "schedweb/internal/log"
	"schedweb/internal/model"
	"schedweb/internal/schedule"
	"schedweb/internal/store"
)

// editorRoutes binds one form kind to its URLs.
type editorRoutes struct {
	resource string
	// base is the collection path, e.g. "/appointments".
	base string
	// back is where a successful submit redirects.
	back string
	// find resolves an existing record from the snapshot.
	find func(snap store.Snapshot, id int64) (form.Record, bool)
}

func appointmentRoutes() editorRoutes {
	return editorRoutes{
		resource: config.ResourceAppointments,
		base:     "/appointments",
		back:     "/",
		find: func(snap store.Snapshot, id int64) (form.Record, bool) {
			// Edits look the appointment up unfiltered.
			ev, ok := schedule.FindEvent(schedule.Project(snap, snap.Appointments), id)
			if !ok {
				return nil, false
			}
			return form.AppointmentRecord{Event: ev}, true
		},
	}
}

func clientRoutes() editorRoutes {
	return editorRoutes{
		resource: config.ResourceClients,
		base:     "/clients",
		back:     "/clients",
		find: func(snap store.Snapshot, id int64) (form.Record, bool) {
			c, ok := lo.Find(snap.Clients, func(c model.Client) bool { return c.ID == id })
			if !ok {
				return nil, false
			}
			return form.ClientRecord{Client: c}, true
		},
	}
}

func (s *Server) registerEditor(rt editorRoutes) {
	s.mux.HandleFunc("GET "+rt.base+"/new", func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.openEditor(w, rt, nil)
		if !ok {
			return
		}
		s.renderEditor(w, r, http.StatusOK, rt, e, nil)
	})

	s.mux.HandleFunc("GET "+rt.base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.openExisting(w, r, rt)
		if !ok {
			return
		}
		s.renderEditor(w, r, http.StatusOK, rt, e, nil)
	})

	s.mux.HandleFunc("POST "+rt.base, func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.openEditor(w, rt, nil)
		if !ok || !collect(w, r, e) {
			return
		}
		s.finish(w, r, rt, e, "add", e.Save(r.Context(), s.actions))
	})

	s.mux.HandleFunc("POST "+rt.base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.openExisting(w, r, rt)
		if !ok || !collect(w, r, e) {
			return
		}
		s.finish(w, r, rt, e, "update", e.Save(r.Context(), s.actions))
	})

	s.mux.HandleFunc("POST "+rt.base+"/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.openExisting(w, r, rt)
		if !ok {
			return
		}
		s.finish(w, r, rt, e, "delete", e.Delete(r.Context(), s.actions))
	})
}

func (s *Server) openEditor(w http.ResponseWriter, rt editorRoutes, rec form.Record) (*form.Editor, bool) {
	kind, err := form.KindFor(rt.resource, s.cfg.PhoneRegion)
	if err != nil {
		appLog.Error("no editor kind", err, "resource", rt.resource)
		s.renderError(w, http.StatusInternalServerError, "Error", "This editor is not available.")
		return nil, false
	}
	return form.New(kind, rec), true
}

func (s *Server) openExisting(w http.ResponseWriter, r *http.Request, rt editorRoutes) (*form.Editor, bool) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		s.renderError(w, http.StatusNotFound, "Not found", "No such record.")
		return nil, false
	}
	rec, ok := rt.find(s.store.Snapshot(), id)
	if !ok {
		s.renderError(w, http.StatusNotFound, "Not found", "No such record.")
		return nil, false
	}
	return s.openEditor(w, rt, rec)
}

func collect(w http.ResponseWriter, r *http.Request, e *form.Editor) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return false
	}
	e.Collect(r.PostForm)
	return true
}

// finish applies a submit outcome: success refreshes the store and
// redirects with a flash, failure re-renders the editor with the message.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, rt editorRoutes, e *form.Editor, verb string, out form.Outcome) {
	s.metrics.observeSubmit(rt.resource, verb, out.IsError)

	if !out.Close {
		s.renderEditor(w, r, http.StatusUnprocessableEntity, rt, e, &flash{Message: out.Message, IsError: out.IsError})
		return
	}

	// A request-scoped refresh would be cut short if the client goes away.
	if err := s.store.Refresh(context.WithoutCancel(r.Context())); err != nil {
		appLog.Error("refresh after submit failed", err, "resource", rt.resource)
	}
	appLog.Info("record saved", "resource", rt.resource, "verb", verb, "id", e.RecordID())

	s.viewFor(w, r).setFlash(flash{Message: out.Message})
	http.Redirect(w, r, rt.back, http.StatusSeeOther)
}

type formPage struct {
	pageBase
	Ready        bool
	Fields       []form.RenderedField
	Action       string
	DeleteAction string
	Back         string
	DataLists    map[string][]string
}

func (s *Server) renderEditor(w http.ResponseWriter, r *http.Request, status int, rt editorRoutes, e *form.Editor, msg *flash) {
	snap := s.store.Snapshot()

	page := formPage{
		pageBase:  s.base(r, nil, e.Title()),
		Ready:     e.Ready(),
		Fields:    e.Render(form.CollectionsFrom(snap)),
		Action:    rt.base,
		Back:      rt.back,
		DataLists: map[string][]string{form.DataListClientNames: clientNames(snap)},
	}
	page.Flash = msg
	if e.Mode() == form.ModeEdit {
		id := strconv.FormatInt(e.RecordID(), 10)
		page.Action = rt.base + "/" + id
		page.DeleteAction = rt.base + "/" + id + "/delete"
	}
	s.pages.render(w, status, "form", page)
}
