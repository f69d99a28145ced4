//go:build linux

package mmap

import (
	"syscall"
	"unsafe"
)

// tryMremap uses the Linux mremap syscall to grow or move the mapping
// without an explicit unmap/remap cycle.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	const mremapMayMove = 1

	newAddr, _, errno := syscall.Syscall6(
		syscall.SYS_MREMAP,
		uintptr(unsafe.Pointer(&m.data[0])),
		uintptr(m.size),
		uintptr(newSize),
		mremapMayMove,
		0, 0)
	if errno != 0 {
		return nil, errno
	}

	var newData []byte
	sh := (*struct {
		Data uintptr
		Len  int
		Cap  int
	})(unsafe.Pointer(&newData))
	sh.Data = newAddr
	sh.Len = newSize
	sh.Cap = newSize

	return newData, nil
}
