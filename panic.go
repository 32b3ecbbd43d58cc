package rawpar

import (
	"github.com/sourcegraph/conc/panics"
)

// PanicError wraps a panic recovered on one branch of a drive together with
// the stack trace captured at the point of the panic.
//
// Bridge joins both branches of a split before re-raising, so by the time a
// *PanicError reaches the driving goroutine every producer of the drive has
// been released.
type PanicError struct {
	panics.Recovered
}

// Error returns a human-readable representation of the panic,
// including the value and the full stack trace.
func (e *PanicError) Error() string {
	return e.Recovered.String()
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// newPanicError converts a recovered panic. A panic that already crossed a
// branch boundary keeps its original stack.
func newPanicError(r *panics.Recovered) *PanicError {
	if r == nil {
		return nil
	}
	if pe, ok := r.Value.(*PanicError); ok {
		return pe
	}
	return &PanicError{Recovered: *r}
}
