package bridge

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Controller variants accepted in ControllerConfig.Type.
const (
	ControllerAdb       = "Adb"
	ControllerWin32     = "Win32"
	ControllerGamepad   = "Gamepad"
	ControllerPlayCover = "PlayCover"
)

// ControllerConfig selects and parameterizes a controller. Fields not used
// by the chosen Type are ignored.
type ControllerConfig struct {
	Type string `json:"type" yaml:"type"`

	// Adb. Method masks are decimal strings so hosts limited to float64
	// numbers keep every bit.
	AdbPath          string `json:"adb_path,omitempty" yaml:"adb_path,omitempty"`
	Address          string `json:"address,omitempty" yaml:"address,omitempty"`
	ScreencapMethods string `json:"screencap_methods,omitempty" yaml:"screencap_methods,omitempty"`
	InputMethods     string `json:"input_methods,omitempty" yaml:"input_methods,omitempty"`
	Config           string `json:"config,omitempty" yaml:"config,omitempty"`

	// Win32 and Gamepad.
	Handle          uint64  `json:"handle,omitempty" yaml:"handle,omitempty"`
	ScreencapMethod *uint64 `json:"screencap_method,omitempty" yaml:"screencap_method,omitempty"`
	MouseMethod     uint64  `json:"mouse_method,omitempty" yaml:"mouse_method,omitempty"`
	KeyboardMethod  uint64  `json:"keyboard_method,omitempty" yaml:"keyboard_method,omitempty"`
	GamepadType     string  `json:"gamepad_type,omitempty" yaml:"gamepad_type,omitempty"`
}

// AdbControllerConfig builds an Adb config from a discovered device.
func AdbControllerConfig(d native.AdbDevice) ControllerConfig {
	return ControllerConfig{
		Type:             ControllerAdb,
		AdbPath:          d.AdbPath,
		Address:          d.Address,
		ScreencapMethods: strconv.FormatUint(d.ScreencapMethods, 10),
		InputMethods:     strconv.FormatUint(d.InputMethods, 10),
		Config:           d.Config,
	}
}

func parseMask(field, value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	mask, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid %s '%s'", field, value)).
			WithField(field).
			WithCause(err)
	}
	return mask, nil
}

func gamepadType(name string) uint64 {
	switch name {
	case "DualShock4", "DS4":
		return native.GamepadDualShock4
	default:
		return native.GamepadXbox360
	}
}

// create builds the native controller for cfg. A zero handle with a nil
// error means the engine refused to create it.
func (cfg ControllerConfig) create(engine native.Engine, agentPath string) (native.Controller, string, error) {
	switch cfg.Type {
	case ControllerAdb:
		screencap, err := parseMask("screencap_methods", cfg.ScreencapMethods)
		if err != nil {
			return 0, "", err
		}
		input, err := parseMask("input_methods", cfg.InputMethods)
		if err != nil {
			return 0, "", err
		}
		config := cfg.Config
		if config == "" {
			config = "{}"
		}
		c, err := engine.CreateAdbController(cfg.AdbPath, cfg.Address, screencap, input, config, agentPath)
		return c, "MaaAdbControllerCreate", err

	case ControllerWin32:
		var screencap uint64
		if cfg.ScreencapMethod != nil {
			screencap = *cfg.ScreencapMethod
		}
		c, err := engine.CreateWin32Controller(uintptr(cfg.Handle), screencap, cfg.MouseMethod, cfg.KeyboardMethod)
		return c, "MaaWin32ControllerCreate", err

	case ControllerGamepad:
		screencap := native.Win32ScreencapDXGIDesktopDup
		if cfg.ScreencapMethod != nil {
			screencap = *cfg.ScreencapMethod
		}
		c, err := engine.CreateGamepadController(uintptr(cfg.Handle), gamepadType(cfg.GamepadType), screencap)
		return c, "MaaGamepadControllerCreate", err

	case ControllerPlayCover:
		return 0, "", errors.NewBridgeError(
			fmt.Sprintf("PlayCover controller is not supported on %s", runtime.GOOS), errors.ErrUnsupported)

	default:
		return 0, "", errors.NewValidationError(fmt.Sprintf("unknown controller type '%s'", cfg.Type)).
			WithField("type")
	}
}

// ConnectController creates a controller for id and posts a connection
// request without waiting for it. The previous controller, and any tasker
// bound to it, is destroyed only once the new controller has been created
// and its connection posted.
func (s *Service) ConnectController(id string, cfg ControllerConfig, agentPath string) (int64, error) {
	log := s.logger.WithInstance(id)
	log.Info("connect_controller", "type", cfg.Type, "address", cfg.Address, "handle", cfg.Handle)

	var connID int64
	err := s.registry.With(id, func(rt *instance.Runtime) error {
		ctrl, call, err := cfg.create(s.engine, agentPath)
		if err != nil {
			return err
		}
		if ctrl == 0 {
			log.Error("controller creation failed", "call", call)
			return errors.NewBridgeError("failed to create controller", errors.ErrHandleCreation).
				WithInstanceID(id).
				WithCall(call)
		}

		discard := func() {
			if derr := s.engine.DestroyController(ctrl); derr != nil {
				log.Warn("controller destroy failed", "error", derr)
			}
		}

		if err := s.engine.ControllerAddSink(ctrl, rt.Token()); err != nil {
			discard()
			return err
		}
		if ok, err := s.engine.ControllerSetScreenshotShortSide(ctrl, s.shortSide); err != nil {
			discard()
			return err
		} else if !ok {
			log.Warn("screenshot short side rejected", "short_side", s.shortSide)
		}

		connID, err = s.engine.ControllerPostConnection(ctrl)
		if err != nil {
			discard()
			return err
		}
		if connID == native.InvalidID {
			discard()
			log.Error("connection post failed")
			return errors.NewBridgeError("failed to post connection", errors.ErrRequestPost).
				WithInstanceID(id).
				WithCall("MaaControllerPostConnection")
		}

		if rt.Controller() != 0 {
			log.Debug("replacing controller")
			rt.ReleaseTasker(s.engine, log)
			rt.ReleaseController(s.engine, log)
		}
		rt.SetController(ctrl)
		rt.Connection().Posted(connID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info("connection posted", "conn_id", connID)
	return connID, nil
}

// ConnState enumerates ConnectionStatus values.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Failed
)

func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Failed:
		return "Failed"
	default:
		return "Disconnected"
	}
}

// ConnectionStatus is the connectivity of an instance's controller. Reason
// is set only for Failed.
type ConnectionStatus struct {
	State  ConnState
	Reason string
}

// MarshalJSON renders "Connected" style strings, and {"Failed": reason}
// for failures.
func (c ConnectionStatus) MarshalJSON() ([]byte, error) {
	if c.State == Failed {
		return json.Marshal(map[string]string{"Failed": c.Reason})
	}
	return json.Marshal(c.State.String())
}

func (c ConnectionStatus) String() string {
	if c.State == Failed && c.Reason != "" {
		return "Failed(" + c.Reason + ")"
	}
	return c.State.String()
}

// ConnectionStatus queries the controller of id. The connectivity query is
// authoritative; pending and failed requests are reported from the
// outcomes the engine has sent.
func (s *Service) ConnectionStatus(id string) (ConnectionStatus, error) {
	var status ConnectionStatus
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		if rt.Controller() == 0 {
			status = ConnectionStatus{State: Disconnected}
			return nil
		}
		connected, err := s.engine.ControllerConnected(rt.Controller())
		if err != nil {
			return err
		}
		if connected {
			status = ConnectionStatus{State: Connected}
			return nil
		}
		switch phase, reason := rt.Connection().State(); phase {
		case instance.ConnPending:
			status = ConnectionStatus{State: Connecting}
		case instance.ConnFailed:
			status = ConnectionStatus{State: Failed, Reason: strings.TrimSpace(reason)}
		default:
			status = ConnectionStatus{State: Disconnected}
		}
		return nil
	})
	return status, err
}
