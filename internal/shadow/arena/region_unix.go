//go:build unix

package arena

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapRegion maps size bytes of anonymous zeroed memory.
func mapRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapRegion(raw []byte) error {
	err := unix.Munmap(raw)
	if errors.Is(err, unix.EINVAL) {
		// Already unmapped.
		return nil
	}
	return err
}

// wordsOf reinterprets a page-aligned mapping as uint64 words.
func wordsOf(raw []byte) []uint64 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&raw[0])), len(raw)/8)
}
