package cache

import "errors"

// ErrNotFound is returned by Get when a key is absent or expired. Callers
// treat it as a cache miss, never as a failure.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
