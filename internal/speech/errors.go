package speech

import "fmt"

// SubmissionError reports a failed submit round trip or an unusable submit response.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + describe(e.StatusCode, e.Body, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollError reports a failed or malformed status check.
type PollError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("status check for %s failed: %s", e.Operation, describe(e.StatusCode, e.Body, e.Err))
}

func (e *PollError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// statusError is a non-success HTTP response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status=%d, body=%s", e.code, e.body)
}

func describe(code int, body string, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case code != 0:
		return fmt.Sprintf("status=%d, body=%s", code, body)
	default:
		return "unknown error"
	}
}
