package session

import "errors"

// ErrNotFound is returned when an operation references a session id
// that was never created, already expired, or otherwise absent from
// the store.
var ErrNotFound = errors.New("session not found")
