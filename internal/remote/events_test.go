package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_DeliversUntilClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes/v1/events", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}

		ctx := r.Context()
		assert.NoError(t, wsjson.Write(ctx, conn, Event{Type: "node_created", NodeID: "n1"}))
		assert.NoError(t, wsjson.Write(ctx, conn, Event{Type: "node_renamed", NodeID: "n2", VolumeID: "v1"}))
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	events, err := newTestClient(t, srv.URL).Events(t.Context(), "v1")
	require.NoError(t, err)

	var got []Event

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				require.Len(t, got, 2)
				assert.Equal(t, "node_created", got[0].Type)
				assert.Equal(t, "v1", got[0].VolumeID)
				assert.Equal(t, "n2", got[1].NodeID)

				return
			}

			got = append(got, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func TestEvents_ClosesOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())

	events, err := newTestClient(t, srv.URL).Events(ctx, "v1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestEvents_DialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Events(t.Context(), "v1")
	assert.Error(t, err)
}

func TestEventsURL_Scheme(t *testing.T) {
	t.Parallel()

	c := NewClient("https://api.example.com/v1", nil, nil, nil, Options{})

	u, err := c.eventsURL("vol 1")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/volumes/vol%201/events", u)
}
