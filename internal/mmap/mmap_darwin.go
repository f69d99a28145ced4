//go:build darwin

package mmap

import "errors"

// tryMremap is unavailable on macOS; Remap always falls back to an
// unmap/remap cycle there.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	return nil, errors.New("mremap not available on darwin")
}
