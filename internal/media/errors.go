package media

import "fmt"

// ExtractionError reports a failed audio extraction. ExitCode is -1 when the
// process did not exit normally or never started.
type ExtractionError struct {
	VideoPath string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("audio extraction from %s failed", e.VideoPath)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
