package streamstatus

import (
	"errors"
	"fmt"

	"github.com/longkeyy/datax-synctrack/common/protocol"
)

// ErrInvalidTransition is wrapped by every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid stream status transition")

// InvalidTransitionError identifies a transition the tracker refused.
// From is empty when the stream had no status yet.
type InvalidTransitionError struct {
	Stream  protocol.StreamKey
	Origin  Origin
	Context ReplicationContext
	From    RunState
	To      RunState
}

func (e *InvalidTransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "<none>"
	}
	return fmt.Sprintf("%v: %s -> %s for stream %s from %s (%s)",
		ErrInvalidTransition, from, e.To, e.Stream, e.Origin, e.Context)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
