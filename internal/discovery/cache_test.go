package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/native"
	"github.com/Iron-Ham/maabridge/internal/native/nativetest"
)

var emulator = native.AdbDevice{
	Name:             "MuMu",
	AdbPath:          "/usr/bin/adb",
	Address:          "127.0.0.1:16384",
	ScreencapMethods: 1<<63 | 1,
	InputMethods:     5,
	Config:           "{}",
}

func TestCache_FindAdbDevicesReplacesSnapshot(t *testing.T) {
	eng := nativetest.New()
	eng.Devices = []native.AdbDevice{emulator}
	cache := NewCache(eng, nil)

	devices, err := cache.FindAdbDevices()
	require.NoError(t, err)
	assert.Equal(t, []native.AdbDevice{emulator}, devices)
	assert.Equal(t, devices, cache.AdbDevices())

	eng.Devices = nil
	devices, err = cache.FindAdbDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Empty(t, cache.AdbDevices(), "empty enumeration must replace the previous snapshot")
}

func TestCache_FindAdbDevicesErrorKeepsSnapshot(t *testing.T) {
	eng := nativetest.New()
	eng.Devices = []native.AdbDevice{emulator}
	cache := NewCache(eng, nil)
	_, err := cache.FindAdbDevices()
	require.NoError(t, err)

	eng.NotLoaded = true
	_, err = cache.FindAdbDevices()

	assert.ErrorIs(t, err, errors.ErrLibraryNotLoaded)
	assert.Len(t, cache.AdbDevices(), 1)
}

func TestCache_ReturnsCopies(t *testing.T) {
	eng := nativetest.New()
	eng.Devices = []native.AdbDevice{emulator}
	cache := NewCache(eng, nil)
	_, err := cache.FindAdbDevices()
	require.NoError(t, err)

	got := cache.AdbDevices()
	got[0].Name = "changed"

	assert.Equal(t, "MuMu", cache.AdbDevices()[0].Name)
}

func TestCache_FindDesktopWindowsFilters(t *testing.T) {
	eng := nativetest.New()
	eng.Windows = []native.DesktopWindow{
		{Handle: 1, ClassName: "UnityWndClass", WindowName: "Game"},
		{Handle: 2, ClassName: "Chrome_WidgetWin_1", WindowName: "Browser"},
		{Handle: 3, ClassName: "UnityWndClass", WindowName: "Launcher"},
	}
	cache := NewCache(eng, nil)

	tests := []struct {
		name        string
		class       string
		window      string
		wantHandles []uint64
	}{
		{"no filter", "", "", []uint64{1, 2, 3}},
		{"class", "^Unity", "", []uint64{1, 3}},
		{"class and window", "Unity", "^Game$", []uint64{1}},
		{"invalid class ignored", "([", "Browser", []uint64{2}},
		{"no match", "Qt", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := cache.FindDesktopWindows(tt.class, tt.window)
			require.NoError(t, err)

			var handles []uint64
			for _, w := range windows {
				handles = append(handles, w.Handle)
			}
			assert.Equal(t, tt.wantHandles, handles)
			assert.Len(t, cache.DesktopWindows(), len(tt.wantHandles))
		})
	}
}

func TestCache_EmptyBeforeDiscovery(t *testing.T) {
	cache := NewCache(nativetest.New(), nil)

	assert.Empty(t, cache.AdbDevices())
	assert.Empty(t, cache.DesktopWindows())
}
