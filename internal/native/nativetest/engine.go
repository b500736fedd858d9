// Package nativetest provides an in-memory native.Engine for tests.
//
// Handles are small unique integers. Every create, bind, post and destroy is
// recorded so tests can assert ordering and leak freedom. Knobs on Engine
// inject the failure modes the real engine can produce: null handles,
// invalid request ids, uninitialized taskers and failed agent connects.
package nativetest

import (
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Handle kinds reported by Live.
const (
	KindController  = "controller"
	KindResource    = "resource"
	KindTasker      = "tasker"
	KindAgentClient = "agent"
)

// Engine is a deterministic fake engine. Configure the exported knobs before
// handing it to the code under test.
type Engine struct {
	// NotLoaded makes every call fail with errors.ErrLibraryNotLoaded.
	NotLoaded bool
	// FailCreate makes the factory for the given kind return a null handle.
	FailCreate map[string]bool
	// FailPostConnection makes PostConnection return the invalid id.
	FailPostConnection bool
	// AutoConnect marks controllers connected as soon as a connection is
	// posted (default true).
	AutoConnect bool
	// FailBundles lists resource paths whose post returns the invalid id.
	FailBundles map[string]bool
	// FailEntries lists task entries whose post returns the invalid id.
	FailEntries map[string]bool
	// TaskerNotInited forces TaskerInited to report false.
	TaskerNotInited bool
	// Image is returned by ControllerCachedImage.
	Image []byte
	// AgentConnectFails makes AgentClientConnect report failure.
	AgentConnectFails bool
	// AgentConnectGate, when non-nil, blocks AgentClientConnect until closed.
	AgentConnectGate chan struct{}
	// Identifier is the rendezvous id reported for clients created without one.
	Identifier string
	// LoadErr is returned by Load.
	LoadErr    error
	Devices    []native.AdbDevice
	Windows    []native.DesktopWindow
	VersionStr string

	mu         sync.Mutex
	loadedDir  string
	next       uintptr
	nextID     int64
	live       map[uintptr]string
	destroyed  map[uintptr]bool
	doubleFree int
	transArgs  map[uintptr]uintptr
	taskerRes  map[native.Tasker]native.Resource
	taskerCtrl map[native.Tasker]native.Controller
	agentRes   map[native.AgentClient]native.Resource
	agentIDs   map[native.AgentClient]string
	connected  map[native.Controller]bool
	loaded     map[native.Resource]bool
	running    map[native.Tasker]bool
	status     map[int64]int32
	timeouts   map[native.AgentClient]int64
	bundles    []string
	calls      []string
	sink       native.EventSink
}

// New returns an Engine with AutoConnect enabled.
func New() *Engine {
	return &Engine{
		AutoConnect: true,
		Identifier:  "fake-agent-id",
		VersionStr:  "v0.0.0-fake",
		FailCreate:  map[string]bool{},
		FailBundles: map[string]bool{},
		FailEntries: map[string]bool{},
		live:        map[uintptr]string{},
		destroyed:   map[uintptr]bool{},
		transArgs:   map[uintptr]uintptr{},
		taskerRes:   map[native.Tasker]native.Resource{},
		taskerCtrl:  map[native.Tasker]native.Controller{},
		agentRes:    map[native.AgentClient]native.Resource{},
		agentIDs:    map[native.AgentClient]string{},
		connected:   map[native.Controller]bool{},
		loaded:      map[native.Resource]bool{},
		running:     map[native.Tasker]bool{},
		status:      map[int64]int32{},
		timeouts:    map[native.AgentClient]int64{},
	}
}

var _ native.Engine = (*Engine)(nil)

// enter locks the engine and records the call, returning an error when the
// engine is configured as unloaded.
func (e *Engine) enter(call string) error {
	e.mu.Lock()
	if e.NotLoaded {
		e.mu.Unlock()
		return errors.ErrLibraryNotLoaded
	}
	e.calls = append(e.calls, call)
	return nil
}

func (e *Engine) alloc(kind string) uintptr {
	if e.FailCreate[kind] {
		return 0
	}
	e.next++
	h := e.next
	e.live[h] = kind
	return h
}

func (e *Engine) free(h uintptr) {
	if _, ok := e.live[h]; !ok {
		e.doubleFree++
		return
	}
	delete(e.live, h)
	e.destroyed[h] = true
}

func (e *Engine) postID() int64 {
	e.nextID++
	return e.nextID
}

// Load marks the engine loaded from dir unless LoadErr is set.
func (e *Engine) Load(dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "Load")
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.NotLoaded = false
	e.loadedDir = dir
	return nil
}

// Dir returns the directory passed to the last successful Load.
func (e *Engine) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadedDir
}

func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.NotLoaded
}

func (e *Engine) Version() (string, error) {
	if err := e.enter("Version"); err != nil {
		return "", err
	}
	defer e.mu.Unlock()
	return e.VersionStr, nil
}

func (e *Engine) FindAdbDevices() ([]native.AdbDevice, error) {
	if err := e.enter("FindAdbDevices"); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return slices.Clone(e.Devices), nil
}

func (e *Engine) FindDesktopWindows() ([]native.DesktopWindow, error) {
	if err := e.enter("FindDesktopWindows"); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return slices.Clone(e.Windows), nil
}

func (e *Engine) CreateAdbController(adbPath, address string, screencap, input uint64, config, agentPath string) (native.Controller, error) {
	if err := e.enter("CreateAdbController"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return native.Controller(e.alloc(KindController)), nil
}

func (e *Engine) CreateWin32Controller(hwnd uintptr, screencap, mouse, keyboard uint64) (native.Controller, error) {
	if err := e.enter("CreateWin32Controller"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return native.Controller(e.alloc(KindController)), nil
}

func (e *Engine) CreateGamepadController(hwnd uintptr, gamepadType, screencap uint64) (native.Controller, error) {
	if err := e.enter("CreateGamepadController"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return native.Controller(e.alloc(KindController)), nil
}

func (e *Engine) ControllerAddSink(c native.Controller, transArg uintptr) error {
	if err := e.enter("ControllerAddSink"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.transArgs[uintptr(c)] = transArg
	return nil
}

func (e *Engine) ControllerSetScreenshotShortSide(c native.Controller, side int32) (bool, error) {
	if err := e.enter("ControllerSetScreenshotShortSide"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return side > 0, nil
}

func (e *Engine) ControllerPostConnection(c native.Controller) (int64, error) {
	if err := e.enter("ControllerPostConnection"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	if e.FailPostConnection {
		return native.InvalidID, nil
	}
	if e.AutoConnect {
		e.connected[c] = true
	}
	return e.postID(), nil
}

func (e *Engine) ControllerPostScreencap(c native.Controller) (int64, error) {
	if err := e.enter("ControllerPostScreencap"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.postID(), nil
}

func (e *Engine) ControllerConnected(c native.Controller) (bool, error) {
	if err := e.enter("ControllerConnected"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return e.connected[c], nil
}

func (e *Engine) ControllerCachedImage(c native.Controller) ([]byte, error) {
	if err := e.enter("ControllerCachedImage"); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if e.Image == nil {
		return nil, errors.ErrNativeCall
	}
	return slices.Clone(e.Image), nil
}

func (e *Engine) DestroyController(c native.Controller) error {
	if err := e.enter("DestroyController"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.free(uintptr(c))
	delete(e.connected, c)
	return nil
}

func (e *Engine) CreateResource() (native.Resource, error) {
	if err := e.enter("CreateResource"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return native.Resource(e.alloc(KindResource)), nil
}

func (e *Engine) ResourceAddSink(r native.Resource, transArg uintptr) error {
	if err := e.enter("ResourceAddSink"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.transArgs[uintptr(r)] = transArg
	return nil
}

func (e *Engine) ResourcePostBundle(r native.Resource, path string) (int64, error) {
	if err := e.enter("ResourcePostBundle"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	if e.FailBundles[path] {
		return native.InvalidID, nil
	}
	e.bundles = append(e.bundles, path)
	e.loaded[r] = true
	return e.postID(), nil
}

func (e *Engine) ResourceLoaded(r native.Resource) (bool, error) {
	if err := e.enter("ResourceLoaded"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return e.loaded[r], nil
}

func (e *Engine) DestroyResource(r native.Resource) error {
	if err := e.enter("DestroyResource"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.free(uintptr(r))
	delete(e.loaded, r)
	return nil
}

func (e *Engine) CreateTasker() (native.Tasker, error) {
	if err := e.enter("CreateTasker"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return native.Tasker(e.alloc(KindTasker)), nil
}

func (e *Engine) TaskerAddSink(t native.Tasker, transArg uintptr) error {
	if err := e.enter("TaskerAddSink"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.transArgs[uintptr(t)] = transArg
	return nil
}

func (e *Engine) TaskerBindResource(t native.Tasker, r native.Resource) (bool, error) {
	if err := e.enter("TaskerBindResource"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	e.taskerRes[t] = r
	return true, nil
}

func (e *Engine) TaskerBindController(t native.Tasker, c native.Controller) (bool, error) {
	if err := e.enter("TaskerBindController"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	e.taskerCtrl[t] = c
	return true, nil
}

func (e *Engine) TaskerInited(t native.Tasker) (bool, error) {
	if err := e.enter("TaskerInited"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	_, hasRes := e.taskerRes[t]
	_, hasCtrl := e.taskerCtrl[t]
	return hasRes && hasCtrl && !e.TaskerNotInited, nil
}

func (e *Engine) TaskerPostTask(t native.Tasker, entry, override string) (int64, error) {
	if err := e.enter("TaskerPostTask"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	if e.FailEntries[entry] {
		return native.InvalidID, nil
	}
	id := e.postID()
	e.status[id] = native.StatusPending
	e.running[t] = true
	return id, nil
}

func (e *Engine) TaskerStatus(t native.Tasker, id int64) (int32, error) {
	if err := e.enter("TaskerStatus"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.status[id], nil
}

func (e *Engine) TaskerRunning(t native.Tasker) (bool, error) {
	if err := e.enter("TaskerRunning"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return e.running[t], nil
}

func (e *Engine) TaskerPostStop(t native.Tasker) (int64, error) {
	if err := e.enter("TaskerPostStop"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	e.running[t] = false
	return e.postID(), nil
}

func (e *Engine) TaskerOverridePipeline(t native.Tasker, id int64, override string) (bool, error) {
	if err := e.enter("TaskerOverridePipeline"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	status, known := e.status[id]
	return known && status == native.StatusPending && strings.HasPrefix(strings.TrimSpace(override), "{"), nil
}

func (e *Engine) DestroyTasker(t native.Tasker) error {
	if err := e.enter("DestroyTasker"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.free(uintptr(t))
	delete(e.taskerRes, t)
	delete(e.taskerCtrl, t)
	delete(e.running, t)
	return nil
}

func (e *Engine) CreateAgentClient(identifier string) (native.AgentClient, error) {
	if err := e.enter("CreateAgentClient"); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	a := native.AgentClient(e.alloc(KindAgentClient))
	if a != 0 {
		if identifier == "" {
			identifier = e.Identifier
		}
		e.agentIDs[a] = identifier
	}
	return a, nil
}

func (e *Engine) AgentClientBindResource(a native.AgentClient, r native.Resource) (bool, error) {
	if err := e.enter("AgentClientBindResource"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	e.agentRes[a] = r
	return true, nil
}

func (e *Engine) AgentClientIdentifier(a native.AgentClient) (string, bool, error) {
	if err := e.enter("AgentClientIdentifier"); err != nil {
		return "", false, err
	}
	defer e.mu.Unlock()
	id, ok := e.agentIDs[a]
	return id, ok, nil
}

func (e *Engine) AgentClientSetTimeout(a native.AgentClient, ms int64) (bool, error) {
	if err := e.enter("AgentClientSetTimeout"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	e.timeouts[a] = ms
	return true, nil
}

func (e *Engine) AgentClientConnect(a native.AgentClient) (bool, error) {
	if err := e.enter("AgentClientConnect"); err != nil {
		return false, err
	}
	gate := e.AgentConnectGate
	fails := e.AgentConnectFails
	e.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return !fails, nil
}

func (e *Engine) AgentClientDisconnect(a native.AgentClient) (bool, error) {
	if err := e.enter("AgentClientDisconnect"); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return true, nil
}

func (e *Engine) DestroyAgentClient(a native.AgentClient) error {
	if err := e.enter("DestroyAgentClient"); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.free(uintptr(a))
	delete(e.agentRes, a)
	delete(e.agentIDs, a)
	return nil
}

func (e *Engine) SetEventSink(sink native.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}
