package threshold

import "fmt"

// ThresholdNotMetError is returned for a document when the collected share
// weight can no longer reach the committee threshold.
type ThresholdNotMetError struct {
	collected int
	threshold int
}

// NewThresholdNotMetError returns a new instance of the error.
func NewThresholdNotMetError(collected, threshold int) ThresholdNotMetError {
	return ThresholdNotMetError{collected: collected, threshold: threshold}
}

func (err ThresholdNotMetError) Error() string {
	return fmt.Sprintf("threshold not met: got weight %d, need %d",
		err.collected, err.threshold)
}

// Is returns true when the other error has the same type.
func (err ThresholdNotMetError) Is(other error) bool {
	_, ok := other.(ThresholdNotMetError)
	return ok
}
