package native

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/errors"
)

type fakeSource struct {
	missing map[string]bool
	seen    []string
	closed  bool
}

func (f *fakeSource) lookup(name string) (uintptr, error) {
	f.seen = append(f.seen, name)
	if f.missing[name] {
		return 0, fmt.Errorf("undefined symbol")
	}
	// Never called; only bound.
	return 0x1000, nil
}

func (f *fakeSource) close() { f.closed = true }

func TestResolveTable_Complete(t *testing.T) {
	fw, tk, ac := &fakeSource{}, &fakeSource{}, &fakeSource{}

	tab, err := resolveTable(fw, tk, ac)
	require.NoError(t, err)
	require.NotNil(t, tab)

	assert.Contains(t, fw.seen, "MaaVersion")
	assert.Contains(t, fw.seen, "MaaTaskerPostTask")
	assert.Contains(t, fw.seen, "MaaImageBufferGetEncodedSize")
	assert.Contains(t, tk.seen, "MaaToolkitAdbDeviceFind")
	assert.Contains(t, tk.seen, "MaaToolkitDesktopWindowFindAll")
	assert.Contains(t, ac.seen, "MaaAgentClientCreateV2")
	assert.NotNil(t, tab.agentClientConnect)
	assert.NotNil(t, tab.controllerSetOption)
}

func TestResolveTable_MissingSymbolRejectsTable(t *testing.T) {
	tests := []struct {
		name    string
		fw, tk  map[string]bool
		ac      map[string]bool
		wantLib string
		wantSym string
	}{
		{"framework", map[string]bool{"MaaTaskerRunning": true}, nil, nil, frameworkLib, "MaaTaskerRunning"},
		{"toolkit", nil, map[string]bool{"MaaToolkitAdbDeviceGetConfig": true}, nil, toolkitLib, "MaaToolkitAdbDeviceGetConfig"},
		{"agent", nil, nil, map[string]bool{"MaaAgentClientConnect": true}, agentClientLib, "MaaAgentClientConnect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := resolveTable(
				&fakeSource{missing: tt.fw},
				&fakeSource{missing: tt.tk},
				&fakeSource{missing: tt.ac},
			)
			require.Error(t, err)
			assert.Nil(t, tab)
			assert.Contains(t, err.Error(), tt.wantLib)
			assert.Contains(t, err.Error(), tt.wantSym)
		})
	}
}

func TestResolveTable_StopsAtFirstMissing(t *testing.T) {
	fw := &fakeSource{missing: map[string]bool{"MaaVersion": true}}
	tk := &fakeSource{}

	_, err := resolveTable(fw, tk, &fakeSource{})
	require.Error(t, err)
	assert.Equal(t, []string{"MaaVersion"}, fw.seen)
	assert.Empty(t, tk.seen)
}

func TestLibrary_NotLoaded(t *testing.T) {
	lib := &Library{}
	assert.False(t, lib.Loaded())

	_, err := lib.Version()
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, err = lib.FindAdbDevices()
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, err = lib.FindDesktopWindows()
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, err = lib.CreateResource()
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, err = lib.CreateAdbController("adb", "127.0.0.1:5555", 1, 2, "{}", "")
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, err = lib.TaskerStatus(Tasker(1), 1)
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	_, _, err = lib.AgentClientIdentifier(AgentClient(1))
	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)

	assert.ErrorIs(t, lib.DestroyTasker(Tasker(1)), errors.ErrLibraryNotLoaded)
}

func TestLibrary_LoadMissingDirectoryPublishesNothing(t *testing.T) {
	lib := &Library{}
	err := lib.Load(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.False(t, lib.Loaded())
	assert.Empty(t, lib.dir)
}

func TestLibrary_LoadSameDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	lib := &Library{dir: dir, tab: &table{}}

	// No library files exist, so anything but the short-circuit would fail.
	require.NoError(t, lib.Load(dir))
	assert.True(t, lib.Loaded())
}

func TestLibrary_LoadOtherDirRejected(t *testing.T) {
	dir := t.TempDir()
	prev := &table{}
	lib := &Library{dir: dir, tab: prev}

	err := lib.Load(filepath.Join(dir, "other"))
	require.ErrorIs(t, err, errors.ErrLibraryAlreadyLoaded)
	assert.Contains(t, err.Error(), dir)
	assert.Same(t, prev, lib.tab)
	assert.Equal(t, dir, lib.dir)
}

func TestLibrary_LoadDoesNotWaitOnCallsInFlight(t *testing.T) {
	dir := t.TempDir()
	release := make(chan struct{})
	entered := make(chan struct{})
	tab := &table{agentClientConnect: func(uintptr) uint8 {
		close(entered)
		<-release
		return 1
	}}
	lib := &Library{dir: dir, tab: tab}

	go func() { _, _ = lib.AgentClientConnect(AgentClient(1)) }()
	<-entered
	defer close(release)

	done := make(chan error, 1)
	go func() { done <- lib.Load(filepath.Join(dir, "other")) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrLibraryAlreadyLoaded)
	case <-time.After(2 * time.Second):
		t.Fatal("Load blocked behind a call in flight")
	}
	assert.True(t, lib.Loaded())
}

func TestGoString(t *testing.T) {
	assert.Equal(t, "", goString(0))

	b := []byte("hello\x00world")
	assert.Equal(t, "hello", goString(uintptr(unsafe.Pointer(&b[0]))))

	empty := []byte{0}
	assert.Equal(t, "", goString(uintptr(unsafe.Pointer(&empty[0]))))
}

func TestGoBytes(t *testing.T) {
	assert.Nil(t, goBytes(0, 10))

	src := []byte{1, 2, 3, 4}
	out := goBytes(uintptr(unsafe.Pointer(&src[0])), 3)
	assert.Equal(t, []byte{1, 2, 3}, out)

	src[0] = 9
	assert.Equal(t, byte(1), out[0], "result must be a copy")
}

func TestDispatch(t *testing.T) {
	t.Cleanup(func() { setSink(nil) })

	// No sink installed: dropped silently.
	dispatch(Event{Message: "ignored"})

	var got []Event
	setSink(func(ev Event) { got = append(got, ev) })
	dispatch(Event{Handle: 1, Message: "Controller.Action.Succeeded", Details: `{"ctrl_id":1}`, TransArg: 7})

	require.Len(t, got, 1)
	assert.Equal(t, "Controller.Action.Succeeded", got[0].Message)
	assert.Equal(t, uintptr(7), got[0].TransArg)

	setSink(func(Event) { panic("sink failure") })
	assert.NotPanics(t, func() { dispatch(Event{Message: "x"}) })
}

func TestOnEventCopiesStrings(t *testing.T) {
	t.Cleanup(func() { setSink(nil) })

	var got Event
	setSink(func(ev Event) { got = ev })

	msg := []byte("Tasker.Task.Starting\x00")
	details := []byte(`{"task_id":3}` + "\x00")
	ret := onEvent(5, uintptr(unsafe.Pointer(&msg[0])), uintptr(unsafe.Pointer(&details[0])), 11)

	assert.Equal(t, uintptr(0), ret)
	assert.Equal(t, "Tasker.Task.Starting", got.Message)
	assert.Equal(t, `{"task_id":3}`, got.Details)
	assert.Equal(t, uintptr(5), got.Handle)
	assert.Equal(t, uintptr(11), got.TransArg)
}
