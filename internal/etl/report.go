package etl

import (
	"errors"
	"time"

	"docetl/pkg/records"
)

// State is where a file is in its pipeline.
type State int

const (
	StateSniffing State = iota
	StateStreaming
	StateFallback
	StateTransforming
	StateLoading
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSniffing:
		return "sniffing"
	case StateStreaming:
		return "streaming"
	case StateFallback:
		return "fallback"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// FileReport accounts for one dataset. Every row read ends up as a
// duplicate, a dropped row or an attempted document; every attempted
// document is inserted or rejected.
type FileReport struct {
	Name       string
	Kind       records.Kind
	Collection string
	Delimiter  rune

	Chunks     int
	RowsRead   int
	Skipped    int
	Duplicates int
	Dropped    int
	Outliers   int
	Filled     int
	Attempted  int
	Inserted   int
	Rejected   int

	// Fallback is set when the whole-file reader ran; FallbackReason says why.
	Fallback       bool
	FallbackReason string

	State   State
	Err     error
	Elapsed time.Duration
}

// Outcome classifies a run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartial
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	}
	return "failure"
}

// ExitCode maps the outcome onto a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartial:
		return 2
	}
	return 1
}

// CollectionSummary maps collection name to its final document count.
type CollectionSummary map[string]int64

// Summary is the result of Run.
type Summary struct {
	Collections CollectionSummary
	Files       []FileReport
	Outcome     Outcome
	Elapsed     time.Duration
}

// Err joins the errors of the failed files.
func (s Summary) Err() error {
	var errs []error
	for _, f := range s.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

func outcomeOf(files []FileReport, countFailed bool) Outcome {
	if len(files) == 0 {
		return OutcomeFailure
	}
	ok := 0
	for _, f := range files {
		if f.State == StateCompleted {
			ok++
		}
	}
	switch {
	case ok == 0:
		return OutcomeFailure
	case ok < len(files) || countFailed:
		return OutcomePartial
	}
	return OutcomeSuccess
}
