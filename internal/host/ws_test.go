package host

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/instance"
)

func dialWS(t *testing.T, ws *WSServer) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(ws)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

// readUntil reads messages until keep matches one.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, keep func(map[string]any) bool) map[string]any {
	t.Helper()
	for {
		var msg map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if keep(msg) {
			return msg
		}
	}
}

func TestWSServer_RequestResponse(t *testing.T) {
	d, svc, _ := newTestDispatcher(t)
	conn, ctx := dialWS(t, NewWSServer(d, svc.Bus(), nil))

	require.NoError(t, wsjson.Write(ctx, conn, Request{
		ID:   json.RawMessage(`"req-1"`),
		Cmd:  "create_instance",
		Args: json.RawMessage(`{"instance_id":"w"}`),
	}))
	resp := readUntil(t, ctx, conn, func(m map[string]any) bool { return m["id"] == "req-1" })
	assert.Equal(t, true, resp["ok"])
	assert.True(t, svc.Registry().Has("w"))

	require.NoError(t, wsjson.Write(ctx, conn, Request{
		ID:   json.RawMessage(`"req-2"`),
		Cmd:  "get_instance_state",
		Args: json.RawMessage(`{"instance_id":"missing"}`),
	}))
	resp = readUntil(t, ctx, conn, func(m map[string]any) bool { return m["id"] == "req-2" })
	assert.Equal(t, false, resp["ok"])
	assert.Contains(t, resp["error"], "not found")
}

func TestWSServer_ForwardsCallbacks(t *testing.T) {
	d, svc, eng := newTestDispatcher(t)
	conn, ctx := dialWS(t, NewWSServer(d, svc.Bus(), nil))

	require.NoError(t, svc.CreateInstance("w"))
	_, err := svc.LoadResource("w", []string{"p"})
	require.NoError(t, err)

	// The subscription is registered once the first request round-trips.
	require.NoError(t, wsjson.Write(ctx, conn, Request{ID: json.RawMessage(`1`), Cmd: "get_version"}))
	readUntil(t, ctx, conn, func(m map[string]any) bool { return m["id"] == float64(1) })

	var handle uintptr
	require.NoError(t, svc.Registry().View("w", func(rt *instance.Runtime) error {
		handle = uintptr(rt.Resource())
		return nil
	}))
	require.True(t, eng.Emit(handle, "Resource.Loading.Starting", "{}"))

	msg := readUntil(t, ctx, conn, func(m map[string]any) bool { return m["event"] == EventCallback })
	payload := msg["payload"].(map[string]any)
	assert.Equal(t, "w", payload["instance_id"])
	assert.Equal(t, "Resource.Loading.Starting", payload["message"])
}
