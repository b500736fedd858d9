package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/native"
	"github.com/Iron-Ham/maabridge/internal/native/nativetest"
)

func agentConfig(exec string) *agent.Config {
	timeout := int64(1000)
	return &agent.Config{ChildExec: exec, TimeoutMs: &timeout}
}

func TestControllerConfig_JSON(t *testing.T) {
	var cfg ControllerConfig
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "Adb",
		"adb_path": "adb",
		"address": "127.0.0.1:5555",
		"screencap_methods": "18446744073709551615",
		"input_methods": "7",
		"config": "{}"
	}`), &cfg))

	assert.Equal(t, ControllerAdb, cfg.Type)
	mask, err := parseMask("screencap_methods", cfg.ScreencapMethods)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), mask)
}

func TestAdbControllerConfig(t *testing.T) {
	cfg := AdbControllerConfig(native.AdbDevice{
		AdbPath:          "adb",
		Address:          "emulator-5554",
		ScreencapMethods: 1 << 60,
		InputMethods:     2,
	})

	assert.Equal(t, ControllerAdb, cfg.Type)
	assert.Equal(t, "1152921504606846976", cfg.ScreencapMethods)
	assert.Equal(t, "2", cfg.InputMethods)
}

func TestConnectController_Variants(t *testing.T) {
	hwnd := uint64(0x1234)
	screencap := uint64(8)

	tests := []struct {
		name     string
		cfg      ControllerConfig
		wantCall string
		wantErr  error
	}{
		{"adb", adbConfig(), "CreateAdbController", nil},
		{"win32", ControllerConfig{Type: ControllerWin32, Handle: hwnd, ScreencapMethod: &screencap, MouseMethod: 1, KeyboardMethod: 1}, "CreateWin32Controller", nil},
		{"gamepad defaults", ControllerConfig{Type: ControllerGamepad, Handle: hwnd}, "CreateGamepadController", nil},
		{"playcover", ControllerConfig{Type: ControllerPlayCover, Address: "127.0.0.1:1717"}, "", errors.ErrUnsupported},
		{"unknown", ControllerConfig{Type: "Serial"}, "", errors.ErrInvalidInput},
		{"bad mask", ControllerConfig{Type: ControllerAdb, ScreencapMethods: "0x10"}, "", errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, eng := newTestService(t)
			require.NoError(t, svc.CreateInstance("x"))

			connID, err := svc.ConnectController("x", tt.cfg, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, eng.Live(nativetest.KindController))
				return
			}
			require.NoError(t, err)
			assert.Positive(t, connID)
			assert.Equal(t, 1, eng.CountCalls(tt.wantCall))
			assert.Equal(t, 1, eng.CountCalls("ControllerAddSink"))
			assert.Equal(t, 1, eng.CountCalls("ControllerSetScreenshotShortSide"))
		})
	}
}

func TestGamepadType(t *testing.T) {
	assert.Equal(t, native.GamepadDualShock4, gamepadType("DualShock4"))
	assert.Equal(t, native.GamepadDualShock4, gamepadType("DS4"))
	assert.Equal(t, native.GamepadXbox360, gamepadType(""))
	assert.Equal(t, native.GamepadXbox360, gamepadType("Xbox360"))
}

func TestConnectController_CreationFailure(t *testing.T) {
	svc, eng := newTestService(t)
	require.NoError(t, svc.CreateInstance("x"))
	eng.FailCreate[nativetest.KindController] = true

	_, err := svc.ConnectController("x", adbConfig(), "")

	assert.ErrorIs(t, err, errors.ErrHandleCreation)
	assert.Contains(t, errors.Describe(err), "MaaAdbControllerCreate")
}

func TestConnectController_PostFailureDestroysNewController(t *testing.T) {
	svc, eng := newTestService(t)
	require.NoError(t, svc.CreateInstance("x"))
	_, err := svc.ConnectController("x", adbConfig(), "")
	require.NoError(t, err)
	_, oldCtrl, _ := handles(t, svc, "x")

	eng.FailPostConnection = true
	_, err = svc.ConnectController("x", adbConfig(), "")

	assert.ErrorIs(t, err, errors.ErrRequestPost)
	_, ctrl, _ := handles(t, svc, "x")
	assert.Equal(t, oldCtrl, ctrl, "previous controller kept")
	assert.Equal(t, 1, eng.Live(nativetest.KindController))
	assert.Equal(t, 1, eng.CountCalls("DestroyController"))
}

func TestConnectController_ReplacementDestroysOldControllerAndTasker(t *testing.T) {
	svc, eng := newTestService(t)
	ready(t, svc, "x")
	_, err := svc.RunTask("x", "main", "")
	require.NoError(t, err)
	_, oldCtrl, oldTasker := handles(t, svc, "x")

	_, err = svc.ConnectController("x", adbConfig(), "")
	require.NoError(t, err)

	_, ctrl, tk := handles(t, svc, "x")
	assert.NotEqual(t, oldCtrl, ctrl)
	assert.Zero(t, tk)
	assert.True(t, eng.Destroyed(uintptr(oldCtrl)))
	assert.True(t, eng.Destroyed(uintptr(oldTasker)))
	assert.Equal(t, []string{"DestroyTasker", "DestroyController"}, eng.CallsWithPrefix("Destroy"))

	_, err = svc.RunTask("x", "main", "")
	require.NoError(t, err)
	_, _, newTasker := handles(t, svc, "x")
	_, boundCtrl := eng.TaskerBinding(newTasker)
	assert.Equal(t, ctrl, boundCtrl)
}

func TestConnectionStatus(t *testing.T) {
	svc, eng := newTestService(t)
	eng.AutoConnect = false
	require.NoError(t, svc.CreateInstance("x"))

	status, err := svc.ConnectionStatus("x")
	require.NoError(t, err)
	assert.Equal(t, Disconnected, status.State)

	connID, err := svc.ConnectController("x", adbConfig(), "")
	require.NoError(t, err)
	_, ctrl, _ := handles(t, svc, "x")

	status, err = svc.ConnectionStatus("x")
	require.NoError(t, err)
	assert.Equal(t, Connecting, status.State)

	details, _ := json.Marshal(map[string]any{"ctrl_id": connID, "action": "connect"})
	require.True(t, eng.Emit(uintptr(ctrl), "Controller.Action.Failed", string(details)))
	status, err = svc.ConnectionStatus("x")
	require.NoError(t, err)
	assert.Equal(t, Failed, status.State)
	assert.NotEmpty(t, status.Reason)

	eng.SetConnected(ctrl, true)
	status, err = svc.ConnectionStatus("x")
	require.NoError(t, err)
	assert.Equal(t, Connected, status.State)
}

func TestConnectionStatus_IgnoresOtherActions(t *testing.T) {
	svc, eng := newTestService(t)
	eng.AutoConnect = false
	require.NoError(t, svc.CreateInstance("x"))
	connID, err := svc.ConnectController("x", adbConfig(), "")
	require.NoError(t, err)
	_, ctrl, _ := handles(t, svc, "x")

	details, _ := json.Marshal(map[string]any{"ctrl_id": connID, "action": "screencap"})
	eng.Emit(uintptr(ctrl), "Controller.Action.Failed", string(details))

	status, err := svc.ConnectionStatus("x")
	require.NoError(t, err)
	assert.Equal(t, Connecting, status.State)
}

func TestConnectionStatus_JSON(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{ConnectionStatus{State: Disconnected}, `"Disconnected"`},
		{ConnectionStatus{State: Connecting}, `"Connecting"`},
		{ConnectionStatus{State: Connected}, `"Connected"`},
		{ConnectionStatus{State: Failed, Reason: "timeout"}, `{"Failed":"timeout"}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.status)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code int32
		want TaskStatus
	}{
		{native.StatusPending, TaskPending},
		{native.StatusRunning, TaskRunning},
		{native.StatusSucceeded, TaskSucceeded},
		{native.StatusFailed, TaskFailed},
		{0, TaskFailed},
		{-1, TaskFailed},
		{1500, TaskFailed},
		{1 << 30, TaskFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapStatus(tt.code), "code %d", tt.code)
	}
}
