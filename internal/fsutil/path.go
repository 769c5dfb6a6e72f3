// Package fsutil holds small filesystem checks.
package fsutil

import "os"

// IsValidPath reports whether path names an existing regular file.
func IsValidPath(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Validator adapts IsValidPath to the contract.PathValidator interface.
type Validator struct{}

// IsValidPath reports whether path names an existing regular file.
func (Validator) IsValidPath(path string) bool {
	return IsValidPath(path)
}
