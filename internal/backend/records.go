package backend

import (
	"context"

	"schedweb/internal/config"
	"schedweb/internal/model"
)

// Typed list helpers. Each returns a fresh slice owned by the caller.

func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := c.List(ctx, config.ResourceUsers, &out)
	return out, err
}

func (c *Client) Clients(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	err := c.List(ctx, config.ResourceClients, &out)
	return out, err
}

func (c *Client) Services(ctx context.Context) ([]model.Service, error) {
	var out []model.Service
	err := c.List(ctx, config.ResourceServices, &out)
	return out, err
}

func (c *Client) Appointments(ctx context.Context) ([]model.Appointment, error) {
	var out []model.Appointment
	err := c.List(ctx, config.ResourceAppointments, &out)
	return out, err
}

func (c *Client) AppointmentServices(ctx context.Context) ([]model.AppointmentService, error) {
	var out []model.AppointmentService
	err := c.List(ctx, config.ResourceAppointmentServices, &out)
	return out, err
}
