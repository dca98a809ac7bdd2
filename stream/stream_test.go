package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pthm-cable/pedoni/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startHub serves a running hub on an httptest server.
func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	ts := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Event, msg.Data
}

func sample() telemetry.Snapshot {
	return telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		Scenario: "corridor",
		Width:    20,
		Height:   5,
		Tick:     42,
		Time:     4.2,
		Pedestrians: []telemetry.PedestrianState{
			{ID: 1, X: 3, Y: 2.5, VX: 1.2, Destination: 1},
			{ID: 4, X: 7, Y: 1.5, VX: 1.1, VY: 0.1, Destination: 1},
		},
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.PublishSnapshot(sample())
	event, data := readMessage(t, conn)
	assert.Equal(t, EventSnapshot, event)

	var got telemetry.Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sample(), got)

	hub.PublishCrowd(telemetry.CrowdStats{WindowEndTick: 100, Active: 12, Flow: 0.8})
	event, data = readMessage(t, conn)
	assert.Equal(t, EventCrowd, event)
	assert.Contains(t, string(data), `"Active":12`)

	hub.PublishBookmark(telemetry.Bookmark{Type: telemetry.BookmarkJam, Tick: 300})
	event, _ = readMessage(t, conn)
	assert.Equal(t, EventBookmark, event)
}

func TestHub_Disconnect(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Publishing with no viewers is a no-op apart from the stored snapshot.
	hub.PublishSnapshot(sample())
	assert.NotNil(t, hub.Latest())
}

func TestRouter_Snapshot(t *testing.T) {
	hub, ts := startHub(t)
	client := ts.Client()

	resp, err := client.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.PublishSnapshot(sample())

	resp, err = client.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got telemetry.Snapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got.Pedestrians, 2)
}

func TestRouter_Healthz(t *testing.T) {
	_, ts := startHub(t)
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Shutdown(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	url := "ws://" + srv.Addr() + "/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		resp.Body.Close()
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// The hub closed the viewer connection on shutdown.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
