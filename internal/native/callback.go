package native

import (
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
)

var (
	currentSink atomic.Pointer[EventSink]

	callbackOnce sync.Once
	callbackPtr  uintptr
)

// setSink installs the process-wide event receiver. A nil sink drops events.
func setSink(sink EventSink) {
	if sink == nil {
		currentSink.Store(nil)
		return
	}
	currentSink.Store(&sink)
}

// eventCallback returns the C function pointer registered with every
// AddSink call. It is created once per process.
func eventCallback() uintptr {
	callbackOnce.Do(func() {
		callbackPtr = purego.NewCallback(onEvent)
	})
	return callbackPtr
}

// onEvent matches MaaEventCallback(handle, message, details_json, trans_arg).
// It runs on engine threads: strings are copied before returning and panics
// never cross back into C.
func onEvent(handle, message, details, transArg uintptr) uintptr {
	dispatch(Event{
		Handle:   handle,
		Message:  goString(message),
		Details:  goString(details),
		TransArg: transArg,
	})
	return 0
}

func dispatch(ev Event) {
	defer func() { _ = recover() }()

	sink := currentSink.Load()
	if sink == nil {
		return
	}
	(*sink)(ev)
}
