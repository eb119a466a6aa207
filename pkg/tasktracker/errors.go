package tasktracker

import "errors"

var (
	// ErrSubmission indicates the external executor was unreachable for one
	// submission attempt. Retried with bounded backoff before surfacing.
	ErrSubmission = errors.New("job submission failed")

	// ErrTaskFailed indicates submission retries were exhausted.
	ErrTaskFailed = errors.New("task failed after retries")

	// ErrUnknownJob indicates no task record exists for the job id.
	ErrUnknownJob = errors.New("unknown job id")
)

// IsTaskFailed checks whether err reports exhausted submission retries.
func IsTaskFailed(err error) bool {
	return errors.Is(err, ErrTaskFailed)
}
