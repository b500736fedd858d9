package native

// Opaque native handles. Zero is the null handle.
type (
	Resource    uintptr
	Controller  uintptr
	Tasker      uintptr
	AgentClient uintptr
)

// InvalidID is returned by post calls that failed to enqueue.
const InvalidID int64 = 0

// Task status codes reported by the tasker.
const (
	StatusPending   int32 = 1000
	StatusRunning   int32 = 2000
	StatusSucceeded int32 = 3000
	StatusFailed    int32 = 4000
)

// Gamepad types accepted by MaaGamepadControllerCreate.
const (
	GamepadXbox360    uint64 = 0
	GamepadDualShock4 uint64 = 1
)

// Win32ScreencapDXGIDesktopDup is the default screencap method for gamepad
// controllers.
const Win32ScreencapDXGIDesktopDup uint64 = 1 << 2

// ctrlOptionScreenshotTargetShortSide is MaaCtrlOption_ScreenshotTargetShortSide.
const ctrlOptionScreenshotTargetShortSide int32 = 2

// AdbDevice is a snapshot of one device reported by ADB discovery.
type AdbDevice struct {
	Name             string `json:"name" yaml:"name"`
	AdbPath          string `json:"adb_path" yaml:"adb_path"`
	Address          string `json:"address" yaml:"address"`
	ScreencapMethods uint64 `json:"screencap_methods,string" yaml:"screencap_methods"`
	InputMethods     uint64 `json:"input_methods,string" yaml:"input_methods"`
	Config           string `json:"config" yaml:"config"`
}

// DesktopWindow is a snapshot of one top-level desktop window.
type DesktopWindow struct {
	Handle     uint64 `json:"handle" yaml:"handle"`
	ClassName  string `json:"class_name" yaml:"class_name"`
	WindowName string `json:"window_name" yaml:"window_name"`
}

// Event is one notification delivered by the engine on one of its threads.
// TransArg is the value registered with the matching AddSink call.
type Event struct {
	Handle   uintptr
	Message  string
	Details  string
	TransArg uintptr
}

// EventSink receives engine notifications. It runs on engine-owned threads
// and must not block.
type EventSink func(Event)

// Engine is the native surface the bridge is built on. Every method returns
// errors.ErrLibraryNotLoaded when no library has been loaded. Null handles
// and invalid ids are reported through return values, not errors.
type Engine interface {
	Loaded() bool
	Version() (string, error)

	FindAdbDevices() ([]AdbDevice, error)
	FindDesktopWindows() ([]DesktopWindow, error)

	CreateAdbController(adbPath, address string, screencap, input uint64, config, agentPath string) (Controller, error)
	CreateWin32Controller(hwnd uintptr, screencap, mouse, keyboard uint64) (Controller, error)
	CreateGamepadController(hwnd uintptr, gamepadType, screencap uint64) (Controller, error)
	ControllerAddSink(c Controller, transArg uintptr) error
	ControllerSetScreenshotShortSide(c Controller, side int32) (bool, error)
	ControllerPostConnection(c Controller) (int64, error)
	ControllerPostScreencap(c Controller) (int64, error)
	ControllerConnected(c Controller) (bool, error)
	ControllerCachedImage(c Controller) ([]byte, error)
	DestroyController(c Controller) error

	CreateResource() (Resource, error)
	ResourceAddSink(r Resource, transArg uintptr) error
	ResourcePostBundle(r Resource, path string) (int64, error)
	ResourceLoaded(r Resource) (bool, error)
	DestroyResource(r Resource) error

	CreateTasker() (Tasker, error)
	TaskerAddSink(t Tasker, transArg uintptr) error
	TaskerBindResource(t Tasker, r Resource) (bool, error)
	TaskerBindController(t Tasker, c Controller) (bool, error)
	TaskerInited(t Tasker) (bool, error)
	TaskerPostTask(t Tasker, entry, override string) (int64, error)
	TaskerStatus(t Tasker, id int64) (int32, error)
	TaskerRunning(t Tasker) (bool, error)
	TaskerPostStop(t Tasker) (int64, error)
	TaskerOverridePipeline(t Tasker, id int64, override string) (bool, error)
	DestroyTasker(t Tasker) error

	// CreateAgentClient creates a client. An empty identifier lets the
	// engine choose the rendezvous identifier.
	CreateAgentClient(identifier string) (AgentClient, error)
	AgentClientBindResource(a AgentClient, r Resource) (bool, error)
	AgentClientIdentifier(a AgentClient) (string, bool, error)
	// AgentClientSetTimeout sets the connect timeout; -1 waits indefinitely.
	AgentClientSetTimeout(a AgentClient, ms int64) (bool, error)
	AgentClientConnect(a AgentClient) (bool, error)
	AgentClientDisconnect(a AgentClient) (bool, error)
	DestroyAgentClient(a AgentClient) error

	// SetEventSink installs the process-wide receiver for engine events.
	SetEventSink(sink EventSink)
}
