package master

import (
	"errors"
	"fmt"

	"yqhp/mandelbrot/internal/transport"
)

// ErrNoWorkers is returned when a run is started without any worker.
var ErrNoWorkers = errors.New("at least one worker is required")

// ProtocolError reports a message that does not fit the row protocol. It is
// fatal for the run.
type ProtocolError struct {
	Worker transport.WorkerID
	Msg    transport.Message
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation by %s (%s): %s", e.Worker, e.Msg, e.Reason)
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
