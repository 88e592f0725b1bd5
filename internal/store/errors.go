package store

import "errors"

// ErrNotFound is returned when a requested row does not exist, or exists but
// belongs to another account.
var ErrNotFound = errors.New("not found")

// ErrUnsupportedDriver is returned by Open for an unknown database driver.
var ErrUnsupportedDriver = errors.New("unsupported database driver")
