package verify

import (
	"github.com/rotisserie/eris"
)

// Failure kinds raised by a tier invocation. Acquisition and analysis
// failures never surface: they degrade to "no signal" and a neutral result.
var (
	// ErrSelection means the event query itself failed and the invocation
	// was abandoned.
	ErrSelection = eris.New("verify: selection failed")
	// ErrPerEvent marks a failure confined to one event.
	ErrPerEvent = eris.New("verify: event processing failed")
	// ErrPersistence marks a failed derivative write. The entity keeps its
	// previous values.
	ErrPersistence = eris.New("verify: persistence failed")
)

// Error attaches a failure kind and the affected event to an underlying
// cause. errors.Is matches both the kind and the cause.
type Error struct {
	Kind    error
	EventID string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.EventID != "" {
		msg += " (event " + e.EventID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, eventID string, err error) *Error {
	return &Error{Kind: kind, EventID: eventID, Err: err}
}

// recovered adapts fn for an errgroup, turning a panic in a venue worker
// into an error for the owning event.
func recovered(venueID string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("venue %s: panic: %v", venueID, r)
			}
		}()
		fn()
		return nil
	}
}
