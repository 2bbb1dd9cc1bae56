// Package fault defines the error taxonomy shared by the pipeline controller.
//
// Configuration-phase errors (resource exhaustion, timing budget) are never
// retried automatically. A stage process error drops one frame and the
// pipeline continues with the next trigger. Protocol and peripheral errors end
// the session and are surfaced to the caller.
package fault

import "errors"

var (
	// ErrResourceExhausted is returned when a pool runs out of capacity while a
	// mode is being configured.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrStageProcess is returned when a stage fails to process one frame.
	ErrStageProcess = errors.New("stage process error")

	// ErrProtocol is returned when a cross-core message is not valid in the
	// current protocol state, or the event is unknown.
	ErrProtocol = errors.New("protocol error")

	// ErrTimingBudgetExceeded is returned when the active part of a frame
	// consumes the whole frame period.
	ErrTimingBudgetExceeded = errors.New("timing budget exceeded")

	// ErrPeripheralFault is returned when a peripheral cannot be suspended or
	// resumed.
	ErrPeripheralFault = errors.New("peripheral fault")

	// ErrNotConfigured is returned when a frame is requested before any mode
	// has been configured successfully.
	ErrNotConfigured = errors.New("pipeline not configured")
)

// IsFatal tells if an error ends the current session. Only per-frame stage
// errors are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return !errors.Is(err, ErrStageProcess)
}
