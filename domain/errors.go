package domain

import "errors"

// ErrConcurrencyConflict indicates that the underlying storage rejected a
// write because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrNotFound indicates that the referenced entity does not exist in the
// persistent store.
var ErrNotFound = errors.New("entity not found")
