package analysis

import "errors"

// FailurePrefix starts every message stored on a failed analysis.
const FailurePrefix = "분석 중 오류가 발생했습니다: "

// FailureMessage renders the task message for a failed analysis.
func FailureMessage(cause error) string {
	return FailurePrefix + cause.Error()
}

var (
	// ErrUnsupportedPlatform means no known marketplace domain matched the URL.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrFieldExtraction means a required page field could not be read.
	ErrFieldExtraction = errors.New("field extraction failed")
	// ErrPageFetch means a page could not be loaded or read.
	ErrPageFetch = errors.New("page fetch failed")
	// ErrEmptyReviewSet means the crawl produced nothing to analyze.
	ErrEmptyReviewSet = errors.New("no reviews collected")
	// ErrNotFound means the analysis id is unknown.
	ErrNotFound = errors.New("analysis not found")
	// ErrNotReady means the analysis has not completed yet.
	ErrNotReady = errors.New("analysis not completed")
	// ErrAlreadyTerminal means the analysis already completed or failed.
	ErrAlreadyTerminal = errors.New("analysis already finished")
	// ErrInvalidTransition means a status change would move the lifecycle backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCanceled means the analysis was canceled before it finished.
	ErrCanceled = errors.New("analysis canceled")
	// ErrQueueClosed means the job queue was shut down.
	ErrQueueClosed = errors.New("queue closed")
)
