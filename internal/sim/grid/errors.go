package grid

import (
	"errors"
	"fmt"
)

// ErrStaleView reports a read through a view whose generation has been
// superseded; the consumer must re-acquire.
var ErrStaleView = errors.New("view superseded by a newer generation")

// ErrEngineClosed reports an operation on a torn-down engine.
var ErrEngineClosed = errors.New("engine closed")

// DispatchError is the fatal outcome of a tick whose device work failed after
// the half-size retry. The grid remains at the last published generation.
type DispatchError struct {
	Tick uint64
	// Keys are the chunk keys of the failing batch.
	Keys []uint64
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("tick %d: dispatch failed for %d chunks: %v", e.Tick, len(e.Keys), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
