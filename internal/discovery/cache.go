// Package discovery enumerates adb devices and desktop windows through the
// engine and keeps the last result of each for later reads.
package discovery

import (
	"regexp"
	"slices"
	"sync"

	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Cache holds the most recent enumeration results. Reads never touch the
// engine.
type Cache struct {
	engine native.Engine
	logger *logging.Logger

	mu      sync.RWMutex
	devices []native.AdbDevice
	windows []native.DesktopWindow
}

// NewCache creates an empty cache.
func NewCache(engine native.Engine, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Cache{
		engine: engine,
		logger: logger.WithComponent("discovery"),
	}
}

// FindAdbDevices enumerates adb devices and replaces the cached list with
// the result, even when it is empty.
func (c *Cache) FindAdbDevices() ([]native.AdbDevice, error) {
	devices, err := c.engine.FindAdbDevices()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []native.AdbDevice{}
	}

	c.mu.Lock()
	c.devices = slices.Clone(devices)
	c.mu.Unlock()

	c.logger.Info("adb devices found", "count", len(devices))
	return devices, nil
}

// FindDesktopWindows enumerates desktop windows, keeps those whose class and
// title match the optional patterns, and caches the filtered list. A pattern
// that fails to compile is ignored.
func (c *Cache) FindDesktopWindows(classPattern, windowPattern string) ([]native.DesktopWindow, error) {
	windows, err := c.engine.FindDesktopWindows()
	if err != nil {
		return nil, err
	}

	classRe := c.compile("class", classPattern)
	windowRe := c.compile("window", windowPattern)

	matched := make([]native.DesktopWindow, 0, len(windows))
	for _, w := range windows {
		if classRe != nil && !classRe.MatchString(w.ClassName) {
			continue
		}
		if windowRe != nil && !windowRe.MatchString(w.WindowName) {
			continue
		}
		matched = append(matched, w)
	}

	c.mu.Lock()
	c.windows = slices.Clone(matched)
	c.mu.Unlock()

	c.logger.Info("desktop windows found", "total", len(windows), "matched", len(matched))
	return matched, nil
}

func (c *Cache) compile(field, pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		c.logger.Warn("ignoring invalid window filter", "field", field, "pattern", pattern, "error", err)
		return nil
	}
	return re
}

// AdbDevices returns a copy of the cached device list.
func (c *Cache) AdbDevices() []native.AdbDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.devices)
}

// DesktopWindows returns a copy of the cached window list.
func (c *Cache) DesktopWindows() []native.DesktopWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.windows)
}
