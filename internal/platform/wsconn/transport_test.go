package wsconn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/feed"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(events chan feed.Event) func(feed.Event) {
	return func(ev feed.Event) { events <- ev }
}

func next(t *testing.T, events chan feed.Event) feed.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return feed.Event{}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransport_OpenMessageClose(t *testing.T) {
	srv := echoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	events := make(chan feed.Event, 16)
	c := New(quietLogger()).Dial(context.Background(), url, collect(events))

	require.Equal(t, feed.EventOpen, next(t, events).Kind)

	require.NoError(t, c.Send([]byte(`{"op":"subscribe"}`)))
	ev := next(t, events)
	require.Equal(t, feed.EventMessage, ev.Kind)
	assert.JSONEq(t, `{"op":"subscribe"}`, string(ev.Data))

	require.NoError(t, c.Close(feed.CloseNormal, "bye"))
	ev = next(t, events)
	assert.Equal(t, feed.EventClose, ev.Kind)
	assert.Equal(t, feed.CloseNormal, ev.Code)

	assert.Error(t, c.Send([]byte("late")))
}

func TestTransport_DialFailure(t *testing.T) {
	events := make(chan feed.Event, 4)
	New(quietLogger()).Dial(context.Background(), "ws://127.0.0.1:1/ws", collect(events))

	ev := next(t, events)
	assert.Equal(t, feed.EventError, ev.Kind)
	assert.Error(t, ev.Err)

	ev = next(t, events)
	assert.Equal(t, feed.EventClose, ev.Kind)
	assert.Equal(t, feed.CloseAbnormal, ev.Code)
}

func TestTransport_SendBeforeOpen(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	events := make(chan feed.Event, 4)
	c := New(quietLogger()).Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), collect(events))
	assert.ErrorIs(t, c.Send([]byte("x")), ErrNotOpen)

	require.NoError(t, c.Close(feed.CloseNormal, "abandon"))
	ev := next(t, events)
	assert.Equal(t, feed.EventClose, ev.Kind)
	assert.Equal(t, feed.CloseNormal, ev.Code)
}
