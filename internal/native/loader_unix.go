//go:build !windows

package native

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ebitengine/purego"
)

type dlLibrary struct {
	path   string
	handle uintptr
}

func (d *dlLibrary) lookup(name string) (uintptr, error) {
	return purego.Dlsym(d.handle, name)
}

func (d *dlLibrary) close() {
	_ = purego.Dlclose(d.handle)
}

// libraryFile returns the platform file name for an engine library.
func libraryFile(dir, name string) string {
	ext := ".so"
	if runtime.GOOS == "darwin" {
		ext = ".dylib"
	}
	return filepath.Join(dir, "lib"+name+ext)
}

// openLibrary opens one engine library with global symbol visibility so the
// toolkit and agent client can resolve framework symbols.
func openLibrary(dir, name string) (symbolSource, error) {
	path := libraryFile(dir, name)
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &dlLibrary{path: path, handle: handle}, nil
}
