package native

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

// Engine library base names.
const (
	frameworkLib   = "MaaFramework"
	toolkitLib     = "MaaToolkit"
	agentClientLib = "MaaAgentClient"
)

// Library is the loaded engine. The zero value is an unloaded library.
//
// A Library is loaded at most once. Handles created through it are only
// valid against the table that created them, so the table is never swapped
// after publication.
type Library struct {
	loadMu sync.Mutex

	mu  sync.RWMutex
	dir string
	tab *table

	logger atomic.Pointer[logging.Logger]
}

var defaultLibrary = &Library{}

// Default returns the process-wide library.
func Default() *Library {
	return defaultLibrary
}

// Load opens the engine libraries in dir and publishes their function table.
// Loading the directory already in use is a no-op. Once loaded, a different
// directory is rejected with ErrLibraryAlreadyLoaded; libraries are never
// unloaded. Load never waits on engine calls in flight.
func (l *Library) Load(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid library directory %q: %w", dir, err)
	}

	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.RLock()
	loaded, cur := l.tab != nil, l.dir
	l.mu.RUnlock()
	if loaded {
		if cur == abs {
			return nil
		}
		return errors.NewBridgeError(
			fmt.Sprintf("cannot load %s: engine already loaded from %s", abs, cur),
			errors.ErrLibraryAlreadyLoaded)
	}

	tab, err := loadTable(abs)
	if err != nil {
		return err
	}

	// Nothing holds the read lock for long here: every call fails fast
	// until the table is published.
	l.mu.Lock()
	l.tab = tab
	l.dir = abs
	l.mu.Unlock()
	return nil
}

func loadTable(dir string) (*table, error) {
	var opened []symbolSource
	fail := func(err error) (*table, error) {
		for _, lib := range opened {
			lib.close()
		}
		return nil, err
	}

	libs := make(map[string]symbolSource, 3)
	for _, name := range []string{frameworkLib, toolkitLib, agentClientLib} {
		src, err := openLibrary(dir, name)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, src)
		libs[name] = src
	}

	tab, err := resolveTable(libs[frameworkLib], libs[toolkitLib], libs[agentClientLib])
	if err != nil {
		return fail(err)
	}
	return tab, nil
}

// SetLogger sets the logger for engine diagnostics. Nil discards them.
func (l *Library) SetLogger(logger *logging.Logger) {
	if logger != nil {
		logger = logger.WithComponent("native")
	}
	l.logger.Store(logger)
}

func (l *Library) log() *logging.Logger {
	if logger := l.logger.Load(); logger != nil {
		return logger
	}
	return logging.NopLogger()
}

// Loaded reports whether a function table is published.
func (l *Library) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tab != nil
}

// call runs fn with the table held in shared mode.
func (l *Library) call(fn func(t *table)) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.tab == nil {
		return errors.ErrLibraryNotLoaded
	}
	fn(l.tab)
	return nil
}

// SetEventSink installs the process-wide receiver for engine events.
func (l *Library) SetEventSink(sink EventSink) {
	setSink(sink)
}

// Version returns the engine version string.
func (l *Library) Version() (string, error) {
	var v string
	err := l.call(func(t *table) { v = t.version() })
	return v, err
}

// FindAdbDevices runs a blocking ADB scan. A false find result is logged and
// the list is read anyway; it holds nothing when the scan found no devices.
func (l *Library) FindAdbDevices() ([]AdbDevice, error) {
	var devices []AdbDevice
	var scanErr error
	err := l.call(func(t *table) {
		list := t.adbDeviceListCreate()
		if list == 0 {
			scanErr = fmt.Errorf("MaaToolkitAdbDeviceListCreate: %w", errors.ErrHandleCreation)
			return
		}
		defer t.adbDeviceListDestroy(list)

		if !truthy(t.adbDeviceFind(list)) {
			l.log().Warn("MaaToolkitAdbDeviceFind returned false, reading list anyway")
		}

		size := t.adbDeviceListSize(list)
		devices = make([]AdbDevice, 0, size)
		for i := uint64(0); i < size; i++ {
			dev := t.adbDeviceListAt(list, i)
			if dev == 0 {
				continue
			}
			devices = append(devices, AdbDevice{
				Name:             t.adbDeviceGetName(dev),
				AdbPath:          t.adbDeviceGetAdbPath(dev),
				Address:          t.adbDeviceGetAddress(dev),
				ScreencapMethods: t.adbDeviceGetScreencapMethods(dev),
				InputMethods:     t.adbDeviceGetInputMethods(dev),
				Config:           t.adbDeviceGetConfig(dev),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return devices, scanErr
}

// FindDesktopWindows enumerates top-level desktop windows. A false find
// result means no windows and yields an empty list.
func (l *Library) FindDesktopWindows() ([]DesktopWindow, error) {
	var windows []DesktopWindow
	var scanErr error
	err := l.call(func(t *table) {
		list := t.desktopWindowListCreate()
		if list == 0 {
			scanErr = fmt.Errorf("MaaToolkitDesktopWindowListCreate: %w", errors.ErrHandleCreation)
			return
		}
		defer t.desktopWindowListDestroy(list)

		if !truthy(t.desktopWindowFindAll(list)) {
			l.log().Debug("MaaToolkitDesktopWindowFindAll returned false, no windows")
			windows = []DesktopWindow{}
			return
		}

		size := t.desktopWindowListSize(list)
		windows = make([]DesktopWindow, 0, size)
		for i := uint64(0); i < size; i++ {
			w := t.desktopWindowListAt(list, i)
			if w == 0 {
				continue
			}
			windows = append(windows, DesktopWindow{
				Handle:     uint64(t.desktopWindowGetHandle(w)),
				ClassName:  t.desktopWindowGetClassName(w),
				WindowName: t.desktopWindowGetWindowName(w),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return windows, scanErr
}

// Controller

// CreateAdbController creates an ADB controller. A zero handle means the
// engine refused it.
func (l *Library) CreateAdbController(adbPath, address string, screencap, input uint64, config, agentPath string) (Controller, error) {
	var c Controller
	err := l.call(func(t *table) {
		c = Controller(t.adbControllerCreate(adbPath, address, screencap, input, config, agentPath))
	})
	return c, err
}

// CreateWin32Controller creates a controller for the window hwnd.
func (l *Library) CreateWin32Controller(hwnd uintptr, screencap, mouse, keyboard uint64) (Controller, error) {
	var c Controller
	err := l.call(func(t *table) {
		c = Controller(t.win32ControllerCreate(hwnd, screencap, mouse, keyboard))
	})
	return c, err
}

// CreateGamepadController creates a virtual gamepad controller.
func (l *Library) CreateGamepadController(hwnd uintptr, gamepadType, screencap uint64) (Controller, error) {
	var c Controller
	err := l.call(func(t *table) {
		c = Controller(t.gamepadControllerCreate(hwnd, gamepadType, screencap))
	})
	return c, err
}

// ControllerAddSink routes c's events to the event sink tagged with transArg.
func (l *Library) ControllerAddSink(c Controller, transArg uintptr) error {
	cb := eventCallback()
	return l.call(func(t *table) { t.controllerAddSink(uintptr(c), cb, transArg) })
}

// ControllerSetScreenshotShortSide sets the screenshot target short side in
// pixels.
func (l *Library) ControllerSetScreenshotShortSide(c Controller, side int32) (bool, error) {
	var ok bool
	err := l.call(func(t *table) {
		ok = truthy(t.controllerSetOption(uintptr(c), ctrlOptionScreenshotTargetShortSide,
			unsafe.Pointer(&side), uint64(unsafe.Sizeof(side))))
	})
	return ok, err
}

// ControllerPostConnection posts an asynchronous connect and returns its
// request id.
func (l *Library) ControllerPostConnection(c Controller) (int64, error) {
	var id int64
	err := l.call(func(t *table) { id = t.controllerPostConnection(uintptr(c)) })
	return id, err
}

// ControllerPostScreencap posts an asynchronous screencap.
func (l *Library) ControllerPostScreencap(c Controller) (int64, error) {
	var id int64
	err := l.call(func(t *table) { id = t.controllerPostScreencap(uintptr(c)) })
	return id, err
}

// ControllerConnected reports whether c has an established connection.
func (l *Library) ControllerConnected(c Controller) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.controllerConnected(uintptr(c))) })
	return ok, err
}

// ControllerCachedImage returns the encoded (PNG) bytes of the last
// screencap, or nil when none is cached.
func (l *Library) ControllerCachedImage(c Controller) ([]byte, error) {
	var data []byte
	var imgErr error
	err := l.call(func(t *table) {
		buf := t.imageBufferCreate()
		if buf == 0 {
			imgErr = fmt.Errorf("MaaImageBufferCreate: %w", errors.ErrHandleCreation)
			return
		}
		defer t.imageBufferDestroy(buf)

		if !truthy(t.controllerCachedImage(uintptr(c), buf)) {
			imgErr = fmt.Errorf("MaaControllerCachedImage: %w", errors.ErrNativeCall)
			return
		}
		data = goBytes(t.imageBufferGetEncoded(buf), t.imageBufferGetEncodedSize(buf))
	})
	if err != nil {
		return nil, err
	}
	return data, imgErr
}

// DestroyController releases c.
func (l *Library) DestroyController(c Controller) error {
	return l.call(func(t *table) { t.controllerDestroy(uintptr(c)) })
}

// Resource

// CreateResource creates an empty resource.
func (l *Library) CreateResource() (Resource, error) {
	var r Resource
	err := l.call(func(t *table) { r = Resource(t.resourceCreate()) })
	return r, err
}

// ResourceAddSink routes r's events to the event sink tagged with transArg.
func (l *Library) ResourceAddSink(r Resource, transArg uintptr) error {
	cb := eventCallback()
	return l.call(func(t *table) { t.resourceAddSink(uintptr(r), cb, transArg) })
}

// ResourcePostBundle posts an asynchronous load of the bundle at path.
func (l *Library) ResourcePostBundle(r Resource, path string) (int64, error) {
	var id int64
	err := l.call(func(t *table) { id = t.resourcePostBundle(uintptr(r), path) })
	return id, err
}

// ResourceLoaded reports whether every posted bundle has loaded.
func (l *Library) ResourceLoaded(r Resource) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.resourceLoaded(uintptr(r))) })
	return ok, err
}

// DestroyResource releases r.
func (l *Library) DestroyResource(r Resource) error {
	return l.call(func(t *table) { t.resourceDestroy(uintptr(r)) })
}

// Tasker

// CreateTasker creates a tasker with nothing bound.
func (l *Library) CreateTasker() (Tasker, error) {
	var tk Tasker
	err := l.call(func(t *table) { tk = Tasker(t.taskerCreate()) })
	return tk, err
}

// TaskerAddSink routes tk's events to the event sink tagged with transArg.
func (l *Library) TaskerAddSink(tk Tasker, transArg uintptr) error {
	cb := eventCallback()
	return l.call(func(t *table) { t.taskerAddSink(uintptr(tk), cb, transArg) })
}

// TaskerBindResource binds r to tk.
func (l *Library) TaskerBindResource(tk Tasker, r Resource) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.taskerBindResource(uintptr(tk), uintptr(r))) })
	return ok, err
}

// TaskerBindController binds c to tk.
func (l *Library) TaskerBindController(tk Tasker, c Controller) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.taskerBindController(uintptr(tk), uintptr(c))) })
	return ok, err
}

// TaskerInited reports whether tk has a loaded resource and a connected
// controller.
func (l *Library) TaskerInited(tk Tasker) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.taskerInited(uintptr(tk))) })
	return ok, err
}

// TaskerPostTask queues the pipeline entry with a JSON override and returns
// the task id.
func (l *Library) TaskerPostTask(tk Tasker, entry, override string) (int64, error) {
	var id int64
	err := l.call(func(t *table) { id = t.taskerPostTask(uintptr(tk), entry, override) })
	return id, err
}

// TaskerStatus returns the raw status of task id.
func (l *Library) TaskerStatus(tk Tasker, id int64) (int32, error) {
	var status int32
	err := l.call(func(t *table) { status = t.taskerStatus(uintptr(tk), id) })
	return status, err
}

// TaskerRunning reports whether tk has work in flight.
func (l *Library) TaskerRunning(tk Tasker) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.taskerRunning(uintptr(tk))) })
	return ok, err
}

// TaskerPostStop asks tk to stop its running and queued tasks.
func (l *Library) TaskerPostStop(tk Tasker) (int64, error) {
	var id int64
	err := l.call(func(t *table) { id = t.taskerPostStop(uintptr(tk)) })
	return id, err
}

// TaskerOverridePipeline merges override into task id's pipeline. False
// means the engine rejected it, typically because the task has finished.
func (l *Library) TaskerOverridePipeline(tk Tasker, id int64, override string) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.taskerOverridePipeline(uintptr(tk), id, override)) })
	return ok, err
}

// DestroyTasker releases tk.
func (l *Library) DestroyTasker(tk Tasker) error {
	return l.call(func(t *table) { t.taskerDestroy(uintptr(tk)) })
}

// Agent client

// CreateAgentClient creates an agent client. An empty identifier lets the
// engine generate one. A zero handle means creation failed.
func (l *Library) CreateAgentClient(identifier string) (AgentClient, error) {
	var a AgentClient
	err := l.call(func(t *table) {
		if identifier == "" {
			a = AgentClient(t.agentClientCreateV2(0))
			return
		}
		buf := t.stringBufferCreate()
		if buf == 0 {
			return
		}
		defer t.stringBufferDestroy(buf)
		t.stringBufferSet(buf, identifier)
		a = AgentClient(t.agentClientCreateV2(buf))
	})
	return a, err
}

// AgentClientBindResource exposes r to the agent served by a.
func (l *Library) AgentClientBindResource(a AgentClient, r Resource) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.agentClientBindResource(uintptr(a), uintptr(r))) })
	return ok, err
}

// AgentClientIdentifier returns the identifier the agent must connect with.
// The bool is false when the engine could not report it.
func (l *Library) AgentClientIdentifier(a AgentClient) (string, bool, error) {
	var id string
	var ok bool
	err := l.call(func(t *table) {
		buf := t.stringBufferCreate()
		if buf == 0 {
			return
		}
		defer t.stringBufferDestroy(buf)
		if !truthy(t.agentClientIdentifier(uintptr(a), buf)) {
			return
		}
		id = t.stringBufferGet(buf)
		ok = true
	})
	return id, ok, err
}

// AgentClientSetTimeout bounds AgentClientConnect. Negative means no limit.
func (l *Library) AgentClientSetTimeout(a AgentClient, ms int64) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.agentClientSetTimeout(uintptr(a), ms)) })
	return ok, err
}

// AgentClientConnect blocks until the agent connects or the configured
// timeout elapses.
func (l *Library) AgentClientConnect(a AgentClient) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.agentClientConnect(uintptr(a))) })
	return ok, err
}

// AgentClientDisconnect drops a's connection to its agent.
func (l *Library) AgentClientDisconnect(a AgentClient) (bool, error) {
	var ok bool
	err := l.call(func(t *table) { ok = truthy(t.agentClientDisconnect(uintptr(a))) })
	return ok, err
}

// DestroyAgentClient releases a.
func (l *Library) DestroyAgentClient(a AgentClient) error {
	return l.call(func(t *table) { t.agentClientDestroy(uintptr(a)) })
}

var _ Engine = (*Library)(nil)
