package native

import "unsafe"

// goString copies a NUL-terminated C string. A null pointer yields "".
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	ptr := unsafe.Pointer(p)
	n := 0
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}

// goBytes copies size bytes starting at p.
func goBytes(p uintptr, size uint64) []byte {
	if p == 0 || size == 0 {
		return nil
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), size))
	return out
}

func truthy(b uint8) bool {
	return b != 0
}
