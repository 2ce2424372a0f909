package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	o, err := Options{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeoutSec*time.Second, o.Timeout)
}

func TestSchedulerPNGRequiresURLAndOutput(t *testing.T) {
	assert.ErrorIs(t, SchedulerPNG(context.Background(), Options{OutputPath: "x.png"}), ErrNoURL)
	assert.ErrorIs(t, SchedulerPNG(context.Background(), Options{URL: "http://x"}), ErrNoOutput)
}

func TestBasicAuthHeader(t *testing.T) {
	assert.Nil(t, Options{}.headers())

	h := Options{Username: "admin", Password: "secret"}.headers()
	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", h["Authorization"])
}
