package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

func TestHFClient_ParametersBillions(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/models/EleutherAI/gpt-neo-2.7B":
			_, _ = w.Write([]byte(`{"safetensors":{"total":2651307520}}`))
		case "/api/models/org/metadata-free-6B":
			_, _ = w.Write([]byte(`{}`))
		case "/api/models/org/mystery":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHFClient(srv.URL, 5*time.Second, 2*time.Second)

	got, err := c.ParametersBillions(context.Background(), "EleutherAI/gpt-neo-2.7B")
	require.NoError(t, err)
	assert.InDelta(t, 2.65, got, 0.01)

	// Listings without weight metadata fall back to the size in the id.
	got, err = c.ParametersBillions(context.Background(), "org/metadata-free-6B")
	require.NoError(t, err)
	assert.InDelta(t, 6, got, 1e-9)

	_, err = c.ParametersBillions(context.Background(), "org/mystery")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// 404s are permanent, not retried.
	_, err = c.ParametersBillions(context.Background(), "org/unlisted")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHFClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"safetensors":{"total":6000000000}}`))
	}))
	defer srv.Close()

	c := NewHFClient(srv.URL, 5*time.Second, 5*time.Second)

	got, err := c.ParametersBillions(context.Background(), "org/flaky")
	require.NoError(t, err)
	assert.InDelta(t, 6, got, 1e-9)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestNewHFClient_DefaultBaseURL(t *testing.T) {
	t.Parallel()
	c := NewHFClient("", time.Second, 0)
	assert.Equal(t, DefaultHFBaseURL, c.baseURL)
	assert.Equal(t, 15*time.Second, c.maxElapsed)
	c = NewHFClient("https://mirror.example.com/", time.Second, 0)
	assert.Equal(t, "https://mirror.example.com", c.baseURL)
}
