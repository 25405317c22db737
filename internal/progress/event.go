package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageAnalysisStart Stage = "ANALYSIS_START"
	StageProgress      Stage = "ANALYSIS_PROGRESS"
	StageReviewPage    Stage = "REVIEW_PAGE"
	StageAnalysisDone  Stage = "ANALYSIS_DONE"
	StageAnalysisError Stage = "ANALYSIS_ERROR"
)

// Event captures a single milestone of one analysis run.
type Event struct {
	// AnalysisID identifies the run.
	AnalysisID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Platform is the detected marketplace, when known.
	Platform string
	// Status mirrors the task status at emission time.
	Status string
	// Progress is the 0-100 completion value reported to clients.
	Progress int
	// Reviews counts reviews collected so far.
	Reviews int
	// Dur is the elapsed run time for terminal events.
	Dur time.Duration
	// Note carries the progress message or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.AnalysisID == "" {
		return errors.New("analysis id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageAnalysisStart, StageProgress, StageAnalysisDone, StageAnalysisError:
	case StageReviewPage:
		if e.Platform == "" {
			return errors.New("review page requires platform")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes out a run.
func (e Event) Terminal() bool {
	return e.Stage == StageAnalysisDone || e.Stage == StageAnalysisError
}
