//go:build windows

package native

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

type dllLibrary struct {
	path   string
	handle windows.Handle
}

func (d *dllLibrary) lookup(name string) (uintptr, error) {
	return windows.GetProcAddress(d.handle, name)
}

func (d *dllLibrary) close() {
	_ = windows.FreeLibrary(d.handle)
}

func libraryFile(dir, name string) string {
	return filepath.Join(dir, name+".dll")
}

// openLibrary loads one engine DLL. Dependent DLLs are searched in the
// library's own directory first.
func openLibrary(dir, name string) (symbolSource, error) {
	path := libraryFile(dir, name)
	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &dllLibrary{path: path, handle: handle}, nil
}
