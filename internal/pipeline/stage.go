package pipeline

import (
	"context"
	"errors"
	"vidscribe/internal/media"
	"vidscribe/internal/poller"
	"vidscribe/internal/speech"
)

const (
	StageExtraction = "extraction"
	StageSubmission = "submission"
	StagePolling    = "polling"
	StageTimeout    = "timeout"
	StageCancelled  = "cancelled"
	StageUnknown    = "unknown"
)

// StageOf names the stage that produced err.
func StageOf(err error) string {
	var (
		cancelled  *poller.CancelledError
		extraction *media.ExtractionError
		submission *speech.SubmissionError
		poll       *speech.PollError
		opFailed   *poller.OperationFailedError
		timeout    *poller.TimeoutError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return StageCancelled
	case errors.As(err, &extraction):
		return StageExtraction
	case errors.As(err, &submission):
		return StageSubmission
	case errors.As(err, &poll), errors.As(err, &opFailed):
		return StagePolling
	case errors.As(err, &timeout):
		return StageTimeout
	default:
		return StageUnknown
	}
}
