//go:build !unix

package arena

import "unsafe"

// mapRegion allocates a heap region when anonymous mappings are unavailable.
// The region is allocated as words so it is 8-byte aligned.
func mapRegion(size int) ([]byte, error) {
	words := make([]uint64, size/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size), nil
}

func unmapRegion([]byte) error { return nil }

func wordsOf(raw []byte) []uint64 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&raw[0])), len(raw)/8)
}
