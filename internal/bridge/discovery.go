package bridge

import "github.com/Iron-Ham/maabridge/internal/native"

// FindAdbDevices enumerates adb devices and caches the result.
func (s *Service) FindAdbDevices() ([]native.AdbDevice, error) {
	return s.discovery.FindAdbDevices()
}

// FindDesktopWindows enumerates desktop windows filtered by the optional
// class and title patterns and caches the result.
func (s *Service) FindDesktopWindows(classPattern, windowPattern string) ([]native.DesktopWindow, error) {
	return s.discovery.FindDesktopWindows(classPattern, windowPattern)
}

// CachedAdbDevices returns the last adb enumeration.
func (s *Service) CachedAdbDevices() []native.AdbDevice {
	return orEmpty(s.discovery.AdbDevices())
}

// CachedDesktopWindows returns the last window enumeration.
func (s *Service) CachedDesktopWindows() []native.DesktopWindow {
	return orEmpty(s.discovery.DesktopWindows())
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
