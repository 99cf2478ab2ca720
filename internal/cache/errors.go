package cache

import (
	"errors"
	"fmt"
)

// ErrCacheIO is matched by every IOError
var ErrCacheIO = errors.New("cache I/O error")

// IOError reports that the persistence layer could not be read or written
type IOError struct {
	Op      string // "lookup", "store", "open", ...
	Backend string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCacheIO) match any IOError
func (e *IOError) Is(target error) bool { return target == ErrCacheIO }

// WrapIO wraps err as an IOError, or returns nil when err is nil
func WrapIO(op, backend string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Backend: backend, Err: err}
}
