package appcache

import (
	"errors"
	"fmt"
)

var (
	ErrProviderRequired = errors.New("appcache: provider is required")
	ErrNilOut           = errors.New("appcache: out must be a non-nil pointer")
)

// OpError reports a provider failure for one raw key.
type OpError struct {
	Op  string // "get", "set", "del", "clear"
	Key string // raw key; empty for "clear"
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("appcache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("appcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// SerializeError reports a value that the serializer could not encode.
type SerializeError struct {
	Key string
	Err error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("appcache: serialize %q: %v", e.Key, e.Err)
}

func (e *SerializeError) Unwrap() error { return e.Err }
