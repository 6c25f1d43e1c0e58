package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticEndpoints struct {
	urls []string
}

func (s staticEndpoints) EndpointsFor(ctx context.Context, orgID string) ([]string, error) {
	return s.urls, nil
}

func TestDelivererPostsEventEnvelope(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDeliverer(staticEndpoints{urls: []string{srv.URL}}, srv.Client(), nil)
	event := Event{
		Type:       "gpg_key.created",
		OrgID:      "o1",
		ActorID:    "u1",
		ObjectType: "gpg_key",
		ObjectID:   "k1",
		At:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, d.Deliver(context.Background(), event))
	require.Equal(t, event, got)
}

func TestDelivererFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDeliverer(staticEndpoints{urls: []string{srv.URL}}, srv.Client(), nil)
	err := d.Deliver(context.Background(), Event{Type: "gpg_key.created", OrgID: "o1"})
	require.Error(t, err)
}

func TestDelivererNoEndpointsIsSuccess(t *testing.T) {
	d := NewDeliverer(staticEndpoints{}, nil, nil)
	require.NoError(t, d.Deliver(context.Background(), Event{Type: "gpg_key.created", OrgID: "o1"}))
}
