package native

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// table holds one resolved function pointer per engine symbol.
type table struct {
	version func() string

	adbDeviceListCreate          func() uintptr
	adbDeviceListDestroy         func(list uintptr)
	adbDeviceFind                func(list uintptr) uint8
	adbDeviceListSize            func(list uintptr) uint64
	adbDeviceListAt              func(list uintptr, index uint64) uintptr
	adbDeviceGetName             func(device uintptr) string
	adbDeviceGetAdbPath          func(device uintptr) string
	adbDeviceGetAddress          func(device uintptr) string
	adbDeviceGetScreencapMethods func(device uintptr) uint64
	adbDeviceGetInputMethods     func(device uintptr) uint64
	adbDeviceGetConfig           func(device uintptr) string

	desktopWindowListCreate    func() uintptr
	desktopWindowListDestroy   func(list uintptr)
	desktopWindowFindAll       func(list uintptr) uint8
	desktopWindowListSize      func(list uintptr) uint64
	desktopWindowListAt        func(list uintptr, index uint64) uintptr
	desktopWindowGetHandle     func(window uintptr) uintptr
	desktopWindowGetClassName  func(window uintptr) string
	desktopWindowGetWindowName func(window uintptr) string

	adbControllerCreate      func(adbPath, address string, screencap, input uint64, config, agentPath string) uintptr
	win32ControllerCreate    func(hwnd uintptr, screencap, mouse, keyboard uint64) uintptr
	gamepadControllerCreate  func(hwnd uintptr, gamepadType, screencap uint64) uintptr
	controllerAddSink        func(ctrl, callback, transArg uintptr) int64
	controllerSetOption      func(ctrl uintptr, key int32, value unsafe.Pointer, size uint64) uint8
	controllerPostConnection func(ctrl uintptr) int64
	controllerPostScreencap  func(ctrl uintptr) int64
	controllerConnected      func(ctrl uintptr) uint8
	controllerCachedImage    func(ctrl, buffer uintptr) uint8
	controllerDestroy        func(ctrl uintptr)

	resourceCreate     func() uintptr
	resourceAddSink    func(res, callback, transArg uintptr) int64
	resourcePostBundle func(res uintptr, path string) int64
	resourceLoaded     func(res uintptr) uint8
	resourceDestroy    func(res uintptr)

	taskerCreate           func() uintptr
	taskerAddSink          func(tasker, callback, transArg uintptr) int64
	taskerBindResource     func(tasker, res uintptr) uint8
	taskerBindController   func(tasker, ctrl uintptr) uint8
	taskerInited           func(tasker uintptr) uint8
	taskerPostTask         func(tasker uintptr, entry, override string) int64
	taskerStatus           func(tasker uintptr, id int64) int32
	taskerRunning          func(tasker uintptr) uint8
	taskerPostStop         func(tasker uintptr) int64
	taskerOverridePipeline func(tasker uintptr, id int64, override string) uint8
	taskerDestroy          func(tasker uintptr)

	agentClientCreateV2     func(identifier uintptr) uintptr
	agentClientBindResource func(client, res uintptr) uint8
	agentClientIdentifier   func(client, buffer uintptr) uint8
	agentClientSetTimeout   func(client uintptr, ms int64) uint8
	agentClientConnect      func(client uintptr) uint8
	agentClientDisconnect   func(client uintptr) uint8
	agentClientDestroy      func(client uintptr)

	stringBufferCreate  func() uintptr
	stringBufferDestroy func(buffer uintptr)
	stringBufferGet     func(buffer uintptr) string
	stringBufferSet     func(buffer uintptr, s string) uint8

	imageBufferCreate         func() uintptr
	imageBufferDestroy        func(buffer uintptr)
	imageBufferGetEncoded     func(buffer uintptr) uintptr
	imageBufferGetEncodedSize func(buffer uintptr) uint64
}

// symbolSource resolves exported symbols from one opened library.
type symbolSource interface {
	lookup(name string) (uintptr, error)
	close()
}

// binder accumulates the first resolution failure so a table is either
// complete or rejected.
type binder struct {
	src symbolSource
	lib string
	err error
}

func (b *binder) bind(fptr any, name string) {
	if b.err != nil {
		return
	}
	addr, err := b.src.lookup(name)
	if err != nil {
		b.err = fmt.Errorf("%s: missing symbol %s: %w", b.lib, name, err)
		return
	}
	if addr == 0 {
		b.err = fmt.Errorf("%s: symbol %s resolved to null", b.lib, name)
		return
	}
	purego.RegisterFunc(fptr, addr)
}

// resolveTable binds every symbol from the three engine libraries.
func resolveTable(framework, toolkit, agent symbolSource) (*table, error) {
	t := &table{}

	fw := &binder{src: framework, lib: frameworkLib}
	fw.bind(&t.version, "MaaVersion")

	fw.bind(&t.adbControllerCreate, "MaaAdbControllerCreate")
	fw.bind(&t.win32ControllerCreate, "MaaWin32ControllerCreate")
	fw.bind(&t.gamepadControllerCreate, "MaaGamepadControllerCreate")
	fw.bind(&t.controllerAddSink, "MaaControllerAddSink")
	fw.bind(&t.controllerSetOption, "MaaControllerSetOption")
	fw.bind(&t.controllerPostConnection, "MaaControllerPostConnection")
	fw.bind(&t.controllerPostScreencap, "MaaControllerPostScreencap")
	fw.bind(&t.controllerConnected, "MaaControllerConnected")
	fw.bind(&t.controllerCachedImage, "MaaControllerCachedImage")
	fw.bind(&t.controllerDestroy, "MaaControllerDestroy")

	fw.bind(&t.resourceCreate, "MaaResourceCreate")
	fw.bind(&t.resourceAddSink, "MaaResourceAddSink")
	fw.bind(&t.resourcePostBundle, "MaaResourcePostBundle")
	fw.bind(&t.resourceLoaded, "MaaResourceLoaded")
	fw.bind(&t.resourceDestroy, "MaaResourceDestroy")

	fw.bind(&t.taskerCreate, "MaaTaskerCreate")
	fw.bind(&t.taskerAddSink, "MaaTaskerAddSink")
	fw.bind(&t.taskerBindResource, "MaaTaskerBindResource")
	fw.bind(&t.taskerBindController, "MaaTaskerBindController")
	fw.bind(&t.taskerInited, "MaaTaskerInited")
	fw.bind(&t.taskerPostTask, "MaaTaskerPostTask")
	fw.bind(&t.taskerStatus, "MaaTaskerStatus")
	fw.bind(&t.taskerRunning, "MaaTaskerRunning")
	fw.bind(&t.taskerPostStop, "MaaTaskerPostStop")
	fw.bind(&t.taskerOverridePipeline, "MaaTaskerOverridePipeline")
	fw.bind(&t.taskerDestroy, "MaaTaskerDestroy")

	fw.bind(&t.stringBufferCreate, "MaaStringBufferCreate")
	fw.bind(&t.stringBufferDestroy, "MaaStringBufferDestroy")
	fw.bind(&t.stringBufferGet, "MaaStringBufferGet")
	fw.bind(&t.stringBufferSet, "MaaStringBufferSet")

	fw.bind(&t.imageBufferCreate, "MaaImageBufferCreate")
	fw.bind(&t.imageBufferDestroy, "MaaImageBufferDestroy")
	fw.bind(&t.imageBufferGetEncoded, "MaaImageBufferGetEncoded")
	fw.bind(&t.imageBufferGetEncodedSize, "MaaImageBufferGetEncodedSize")
	if fw.err != nil {
		return nil, fw.err
	}

	tk := &binder{src: toolkit, lib: toolkitLib}
	tk.bind(&t.adbDeviceListCreate, "MaaToolkitAdbDeviceListCreate")
	tk.bind(&t.adbDeviceListDestroy, "MaaToolkitAdbDeviceListDestroy")
	tk.bind(&t.adbDeviceFind, "MaaToolkitAdbDeviceFind")
	tk.bind(&t.adbDeviceListSize, "MaaToolkitAdbDeviceListSize")
	tk.bind(&t.adbDeviceListAt, "MaaToolkitAdbDeviceListAt")
	tk.bind(&t.adbDeviceGetName, "MaaToolkitAdbDeviceGetName")
	tk.bind(&t.adbDeviceGetAdbPath, "MaaToolkitAdbDeviceGetAdbPath")
	tk.bind(&t.adbDeviceGetAddress, "MaaToolkitAdbDeviceGetAddress")
	tk.bind(&t.adbDeviceGetScreencapMethods, "MaaToolkitAdbDeviceGetScreencapMethods")
	tk.bind(&t.adbDeviceGetInputMethods, "MaaToolkitAdbDeviceGetInputMethods")
	tk.bind(&t.adbDeviceGetConfig, "MaaToolkitAdbDeviceGetConfig")

	tk.bind(&t.desktopWindowListCreate, "MaaToolkitDesktopWindowListCreate")
	tk.bind(&t.desktopWindowListDestroy, "MaaToolkitDesktopWindowListDestroy")
	tk.bind(&t.desktopWindowFindAll, "MaaToolkitDesktopWindowFindAll")
	tk.bind(&t.desktopWindowListSize, "MaaToolkitDesktopWindowListSize")
	tk.bind(&t.desktopWindowListAt, "MaaToolkitDesktopWindowListAt")
	tk.bind(&t.desktopWindowGetHandle, "MaaToolkitDesktopWindowGetHandle")
	tk.bind(&t.desktopWindowGetClassName, "MaaToolkitDesktopWindowGetClassName")
	tk.bind(&t.desktopWindowGetWindowName, "MaaToolkitDesktopWindowGetWindowName")
	if tk.err != nil {
		return nil, tk.err
	}

	ac := &binder{src: agent, lib: agentClientLib}
	ac.bind(&t.agentClientCreateV2, "MaaAgentClientCreateV2")
	ac.bind(&t.agentClientBindResource, "MaaAgentClientBindResource")
	ac.bind(&t.agentClientIdentifier, "MaaAgentClientIdentifier")
	ac.bind(&t.agentClientSetTimeout, "MaaAgentClientSetTimeout")
	ac.bind(&t.agentClientConnect, "MaaAgentClientConnect")
	ac.bind(&t.agentClientDisconnect, "MaaAgentClientDisconnect")
	ac.bind(&t.agentClientDestroy, "MaaAgentClientDestroy")
	if ac.err != nil {
		return nil, ac.err
	}

	return t, nil
}
