package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidItemKey indicates a serialized item key could not be parsed.
var ErrInvalidItemKey = errors.New("invalid item key")

// ErrInvalidResult indicates an audit result failed schema validation.
var ErrInvalidResult = errors.New("invalid audit result")

// ErrDetailNotFound indicates the data source returned no detail record for an item.
var ErrDetailNotFound = errors.New("detail record not found")

// ErrBatchUnavailable indicates the batch could not be acquired from the data source.
// It is the only fatal error of a run.
var ErrBatchUnavailable = errors.New("batch unavailable")

// FetchError wraps a failure to obtain the detail record of one item.
// Fetch failures are never retried within a run.
type FetchError struct {
	Key ItemKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch detail %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
