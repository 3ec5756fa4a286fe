package workflow

import (
	"errors"
	"fmt"
)

// ErrDiscoveryTimeout is returned when no new run appears within the
// timeout budget after a dispatch.
var ErrDiscoveryTimeout = errors.New("no new run discovered within the timeout budget")

// ErrWaitTimeout is returned when a discovered run does not reach a
// terminal status within the timeout budget.
var ErrWaitTimeout = errors.New("run did not complete within the timeout budget")

// FailureError reports a run that completed with a non-success conclusion.
// It is returned from Run only when failure propagation is enabled.
type FailureError struct {
	RunID      int64
	Conclusion string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("run %d concluded %s", e.RunID, e.Conclusion)
}
