package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "schedweb/internal/log"
	"schedweb/internal/model"
)

// FetchErrorMessage is the page-level banner shown after a failed fetch.
const FetchErrorMessage = "Error: Could not retrieve data."

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("store closed")

// Source fetches the five backend collections. *backend.Client satisfies it.
type Source interface {
	Users(ctx context.Context) ([]model.User, error)
	Clients(ctx context.Context) ([]model.Client, error)
	Services(ctx context.Context) ([]model.Service, error)
	Appointments(ctx context.Context) ([]model.Appointment, error)
	AppointmentServices(ctx context.Context) ([]model.AppointmentService, error)
}

// Snapshot is a consistent copy of the collections at one instant. The
// collections themselves may come from different refreshes.
type Snapshot struct {
	Users               []model.User
	Clients             []model.Client
	Services            []model.Service
	Appointments        []model.Appointment
	AppointmentServices []model.AppointmentService

	// AppointmentsVersion changes whenever the appointment collection is
	// replaced.
	AppointmentsVersion uint64
	RefreshedAt         time.Time
}

// Store holds in-memory copies of the backend collections. Each collection
// is replaced wholesale by its own fetch; there is no cross-collection
// atomicity.
type Store struct {
	src Source

	// lifetime bounds every fetch; results landing after Close are dropped.
	lifetime context.Context
	cancel   context.CancelFunc

	mu                  sync.RWMutex
	users               []model.User
	clients             []model.Client
	services            []model.Service
	appointments        []model.Appointment
	appointmentServices []model.AppointmentService
	apptVersion         uint64
	refreshedAt         time.Time
	fetchErr            string
}

// New returns an empty Store reading from src.
func New(src Source) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		src:      src,
		lifetime: ctx,
		cancel:   cancel,
	}
}

// Close cancels in-flight fetches and makes later results no-ops.
func (s *Store) Close() {
	s.cancel()
}

// Refresh runs all five fetches concurrently. Each successful fetch
// overwrites its collection as soon as it lands. Any failure sets the fetch
// error banner; a fully successful refresh clears it. The first error is
// returned.
func (s *Store) Refresh(ctx context.Context) error {
	if s.lifetime.Err() != nil {
		return ErrClosed
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	// Tie the fetches to the store lifetime as well as the caller.
	unhook := context.AfterFunc(s.lifetime, stop)
	defer unhook()

	var g errgroup.Group
	g.Go(func() error {
		return fetchInto(ctx, s, "users", s.src.Users, func(v []model.User) { s.users = v })
	})
	g.Go(func() error {
		return fetchInto(ctx, s, "clients", s.src.Clients, func(v []model.Client) { s.clients = v })
	})
	g.Go(func() error {
		return fetchInto(ctx, s, "services", s.src.Services, func(v []model.Service) { s.services = v })
	})
	g.Go(func() error {
		return fetchInto(ctx, s, "appointments", s.src.Appointments, func(v []model.Appointment) {
			s.appointments = v
			s.apptVersion++
		})
	})
	g.Go(func() error {
		return fetchInto(ctx, s, "appointment_services", s.src.AppointmentServices, func(v []model.AppointmentService) {
			s.appointmentServices = v
		})
	})

	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifetime.Err() != nil {
		return ErrClosed
	}
	if err != nil {
		s.fetchErr = FetchErrorMessage
		return err
	}
	s.fetchErr = ""
	s.refreshedAt = time.Now()
	return nil
}

// fetchInto runs one fetch and applies the result under the write lock
// unless the fetch context is already done.
func fetchInto[T any](ctx context.Context, s *Store, name string, fetch func(context.Context) ([]T, error), apply func([]T)) error {
	v, err := fetch(ctx)
	if err != nil {
		appLog.Error("store fetch failed", err, "collection", name)
		return err
	}
	if v == nil {
		v = []T{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The lifetime is checked directly: AfterFunc cancels ctx on its own
	// goroutine, so ctx may still look live right after Close.
	if s.lifetime.Err() != nil {
		appLog.Debug("store fetch result dropped after close", "collection", name)
		return ErrClosed
	}
	if ctx.Err() != nil {
		appLog.Debug("store fetch result dropped", "collection", name)
		return ctx.Err()
	}
	apply(v)
	appLog.Debug("store collection replaced", "collection", name, "count", len(v))
	return nil
}

// Snapshot returns copies of all collections.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Users:               slices.Clone(s.users),
		Clients:             slices.Clone(s.clients),
		Services:            slices.Clone(s.services),
		Appointments:        slices.Clone(s.appointments),
		AppointmentServices: slices.Clone(s.appointmentServices),
		AppointmentsVersion: s.apptVersion,
		RefreshedAt:         s.refreshedAt,
	}
}

// FetchError returns the current banner text, or "" when the last refresh
// succeeded.
func (s *Store) FetchError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchErr
}
