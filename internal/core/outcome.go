package core

// Outcome is the terminal result of awaiting a single run.
type Outcome int

const (
	// OutcomeSuccess means the run completed with a success conclusion.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the run completed with any non-success conclusion.
	OutcomeFailure
	// OutcomeTimeout means the wait budget expired before the run completed.
	OutcomeTimeout
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
