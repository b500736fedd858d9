package host

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/bridge"
	"github.com/Iron-Ham/maabridge/internal/native"
	"github.com/Iron-Ham/maabridge/internal/native/nativetest"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *bridge.Service, *nativetest.Engine) {
	t.Helper()
	eng := nativetest.New()
	svc := bridge.New(eng, bridge.Options{Loader: eng, LibraryDir: t.TempDir()}, nil)
	t.Cleanup(func() { _ = svc.Close() })
	return NewDispatcher(svc, nil), svc, eng
}

func call(t *testing.T, d *Dispatcher, cmd string, args any) Response {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		require.NoError(t, err)
		raw = data
	}
	return d.Handle(Request{ID: json.RawMessage(`7`), Cmd: cmd, Args: raw})
}

// roundTrip renders a response the way a host would read it.
func roundTrip(t *testing.T, resp Response) map[string]any {
	t.Helper()
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestDispatcher_Commands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	assert.ElementsMatch(t, []string{
		"init", "set_resource_dir", "get_version", "find_adb_devices",
		"find_win32_windows", "create_instance", "destroy_instance",
		"connect_controller", "get_connection_status", "load_resource",
		"is_resource_loaded", "destroy_resource", "run_task",
		"get_task_status", "stop_task", "override_pipeline", "is_running",
		"post_screencap", "get_cached_image", "start_tasks", "stop_agent",
		"get_instance_state", "get_all_states", "get_cached_adb_devices",
		"get_cached_win32_windows",
	}, d.Commands())
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	resp := call(t, d, "format_disk", nil)

	assert.False(t, resp.OK)
	assert.Equal(t, json.RawMessage(`7`), resp.ID)
	assert.Contains(t, resp.Error, "unknown command")
}

func TestDispatcher_InvalidArgs(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	resp := d.Handle(Request{Cmd: "load_resource", Args: json.RawMessage(`{"instance_id":3}`)})

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "invalid arguments")
}

func TestDispatcher_FullFlow(t *testing.T) {
	d, _, eng := newTestDispatcher(t)

	resp := call(t, d, "init", nil)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "v0.0.0-fake", resp.Result)

	require.True(t, call(t, d, "create_instance", map[string]any{"instance_id": "x"}).OK)

	resp = call(t, d, "load_resource", map[string]any{"instance_id": "x", "paths": []string{"pkgA"}})
	require.True(t, resp.OK, resp.Error)
	assert.Len(t, resp.Result, 1)

	resp = call(t, d, "connect_controller", map[string]any{
		"instance_id": "x",
		"config": map[string]any{
			"type":              "Adb",
			"adb_path":          "adb",
			"address":           "127.0.0.1:5555",
			"screencap_methods": "18446744073709551615",
			"input_methods":     "1",
			"config":            "{}",
		},
	})
	require.True(t, resp.OK, resp.Error)

	resp = call(t, d, "get_connection_status", map[string]any{"instance_id": "x"})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "Connected", roundTrip(t, resp)["result"])

	resp = call(t, d, "run_task", map[string]any{"instance_id": "x", "entry": "main", "pipeline_override": "{}"})
	require.True(t, resp.OK, resp.Error)
	taskID := resp.Result.(int64)

	resp = call(t, d, "get_task_status", map[string]any{"instance_id": "x", "task_id": taskID})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "Pending", roundTrip(t, resp)["result"])

	eng.SetStatus(taskID, native.StatusSucceeded)
	resp = call(t, d, "override_pipeline", map[string]any{"instance_id": "x", "task_id": taskID, "pipeline_override": "{}"})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, false, resp.Result)

	resp = call(t, d, "get_instance_state", map[string]any{"instance_id": "x"})
	require.True(t, resp.OK, resp.Error)
	state := roundTrip(t, resp)["result"].(map[string]any)
	assert.Equal(t, true, state["connected"])
	assert.Len(t, state["task_ids"], 1)

	require.True(t, call(t, d, "stop_task", map[string]any{"instance_id": "x"}).OK)
	require.True(t, call(t, d, "stop_agent", map[string]any{"instance_id": "x"}).OK)
	require.True(t, call(t, d, "destroy_instance", map[string]any{"instance_id": "x"}).OK)

	resp = call(t, d, "is_running", map[string]any{"instance_id": "x"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "not found")
	assert.Equal(t, 0, eng.LiveTotal())
}

func TestDispatcher_DiscoveryResultsEncodeMasksAsStrings(t *testing.T) {
	d, _, eng := newTestDispatcher(t)
	eng.Devices = []native.AdbDevice{{Name: "emu", ScreencapMethods: 1 << 63, InputMethods: 3}}

	resp := call(t, d, "find_adb_devices", nil)
	require.True(t, resp.OK, resp.Error)

	devices := roundTrip(t, resp)["result"].([]any)
	require.Len(t, devices, 1)
	device := devices[0].(map[string]any)
	assert.Equal(t, "9223372036854775808", device["screencap_methods"])
	assert.Equal(t, "3", device["input_methods"])

	resp = call(t, d, "get_cached_adb_devices", nil)
	require.True(t, resp.OK)
	assert.Len(t, resp.Result, 1)

	resp = call(t, d, "get_all_states", nil)
	require.True(t, resp.OK)
	all := roundTrip(t, resp)["result"].(map[string]any)
	assert.Len(t, all["cached_adb_devices"], 1)
	assert.Empty(t, all["cached_win32_windows"])
}

func TestDispatcher_StartTasksAgentSpawnFailure(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	require.True(t, call(t, d, "create_instance", map[string]any{"instance_id": "x"}).OK)
	require.True(t, call(t, d, "load_resource", map[string]any{"instance_id": "x", "paths": []string{"p"}}).OK)
	require.True(t, call(t, d, "connect_controller", map[string]any{
		"instance_id": "x",
		"config":      map[string]any{"type": "Adb", "adb_path": "adb", "address": "a"},
	}).OK)

	resp := call(t, d, "start_tasks", map[string]any{
		"instance_id":  "x",
		"tasks":        []map[string]string{{"entry": "main", "pipeline_override": "{}"}},
		"agent_config": map[string]any{"child_exec": "missing-agent", "timeout": 100},
		"cwd":          t.TempDir(),
	})

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "failed to start agent process")
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.handlers["boom"] = func(json.RawMessage) (any, error) { panic("kaboom") }

	resp := call(t, d, "boom", nil)

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "kaboom")
}
