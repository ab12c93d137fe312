//go:build !linux && !darwin
// +build !linux,!darwin

package dump

import "errors"

// OpenFlatMmap is not available on this platform.
func OpenFlatMmap(path string, dirbase uint64, listHead uint32) (Source, error) {
	return nil, errors.New("memory-mapped images are not supported on this platform")
}
