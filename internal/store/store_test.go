package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedweb/internal/model"
)

type fakeSource struct {
	users    []model.User
	clients  []model.Client
	services []model.Service
	appts    []model.Appointment
	links    []model.AppointmentService

	clientsErr error
	gate       chan struct{} // when non-nil, Appointments blocks until closed
}

func (f *fakeSource) Users(context.Context) ([]model.User, error) { return f.users, nil }
func (f *fakeSource) Clients(context.Context) ([]model.Client, error) {
	return f.clients, f.clientsErr
}
func (f *fakeSource) Services(context.Context) ([]model.Service, error) { return f.services, nil }
func (f *fakeSource) Appointments(context.Context) ([]model.Appointment, error) {
	if f.gate != nil {
		<-f.gate
	}
	return f.appts, nil
}
func (f *fakeSource) AppointmentServices(context.Context) ([]model.AppointmentService, error) {
	return f.links, nil
}

func TestRefreshPopulatesAllCollections(t *testing.T) {
	src := &fakeSource{
		users:    []model.User{{ID: 10, Name: "Ana"}},
		clients:  []model.Client{{ID: 1, Name: "Cleo"}},
		services: []model.Service{{ID: 5, Name: "Cut"}},
		appts:    []model.Appointment{{ID: 1, ClientID: 1, UserID: 10}},
		links:    []model.AppointmentService{{AppointmentID: 1, ServiceID: 5}},
	}
	s := New(src)
	defer s.Close()

	require.NoError(t, s.Refresh(context.Background()))
	snap := s.Snapshot()
	assert.Len(t, snap.Users, 1)
	assert.Len(t, snap.Clients, 1)
	assert.Len(t, snap.Services, 1)
	assert.Len(t, snap.Appointments, 1)
	assert.Len(t, snap.AppointmentServices, 1)
	assert.Equal(t, uint64(1), snap.AppointmentsVersion)
	assert.Empty(t, s.FetchError())
}

func TestRefreshFailureKeepsOtherCollectionsAndSetsBanner(t *testing.T) {
	src := &fakeSource{
		users:      []model.User{{ID: 10, Name: "Ana"}},
		appts:      []model.Appointment{{ID: 1}},
		clientsErr: errors.New("boom"),
	}
	s := New(src)
	defer s.Close()

	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, FetchErrorMessage, s.FetchError())

	snap := s.Snapshot()
	assert.Len(t, snap.Users, 1)
	assert.Len(t, snap.Appointments, 1)
	assert.Empty(t, snap.Clients)

	// Retry succeeds and clears the banner.
	src.clientsErr = nil
	src.clients = []model.Client{{ID: 1, Name: "Cleo"}}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Empty(t, s.FetchError())
	assert.Len(t, s.Snapshot().Clients, 1)
}

func TestRefreshReplacesCollectionsWholesale(t *testing.T) {
	src := &fakeSource{appts: []model.Appointment{{ID: 1}, {ID: 2}, {ID: 3}}}
	s := New(src)
	defer s.Close()

	require.NoError(t, s.Refresh(context.Background()))
	src.appts = []model.Appointment{{ID: 2}}
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, int64(2), snap.Appointments[0].ID)
	assert.Equal(t, uint64(2), snap.AppointmentsVersion)
}

func TestSnapshotIsACopy(t *testing.T) {
	src := &fakeSource{users: []model.User{{ID: 10, Name: "Ana"}}}
	s := New(src)
	defer s.Close()
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	snap.Users[0].Name = "changed"
	assert.Equal(t, "Ana", s.Snapshot().Users[0].Name)
}

func TestLateResultAfterCloseIsDropped(t *testing.T) {
	src := &fakeSource{
		appts: []model.Appointment{{ID: 1}},
		gate:  make(chan struct{}),
	}
	s := New(src)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()

	// Let the other four fetches land, then close before appointments do.
	time.Sleep(20 * time.Millisecond)
	s.Close()
	close(src.gate)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}
	assert.Empty(t, s.Snapshot().Appointments)
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrClosed)
}
