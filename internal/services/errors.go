// Package services defines the shared error taxonomy for pipeline jobs.
//
// Errors are tagged with one of the exported sentinel markers so callers can
// classify failures with errors.Is without parsing message text. Wrap builds
// messages that carry job and operation context for the run summary and logs.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigAmbiguous marks a job source that matched neither the compute
	// nor the plot classification rules.
	ErrConfigAmbiguous = errors.New("ambiguous job config")
	// ErrConfigInvalid marks a config that parsed but carries an unrecognized
	// enum tag or an out-of-range value.
	ErrConfigInvalid = errors.New("invalid job config")
	// ErrNoDataAdmitted marks a compute job in which no segment survived
	// admission filtering; no accumulator file is written.
	ErrNoDataAdmitted = errors.New("no data admitted")
	// ErrMergeGroupEmpty marks a merge group in which every file was
	// unreadable.
	ErrMergeGroupEmpty = errors.New("merge group empty")
	// ErrPersistence marks accumulator or image write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrDecode marks a per-segment decode failure; the segment is skipped.
	ErrDecode = errors.New("decode failure")
	// ErrEstimator marks a per-segment estimator failure; the segment is
	// skipped.
	ErrEstimator = errors.New("estimator failure")
)

// Wrap builds an error message that includes job context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, job, operation, message string, err error) error {
	detail := buildDetail(job, operation, message)
	if marker == nil {
		marker = ErrPersistence
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason returns the short marker name for summaries and the run ledger.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigAmbiguous):
		return "ConfigAmbiguous"
	case errors.Is(err, ErrConfigInvalid):
		return "ConfigInvalid"
	case errors.Is(err, ErrNoDataAdmitted):
		return "NoDataAdmitted"
	case errors.Is(err, ErrMergeGroupEmpty):
		return "MergeGroupEmpty"
	case errors.Is(err, ErrPersistence):
		return "PersistenceFailure"
	case errors.Is(err, ErrDecode):
		return "DecodeFailure"
	case errors.Is(err, ErrEstimator):
		return "EstimatorFailure"
	default:
		return "Error"
	}
}

func buildDetail(job, operation, message string) string {
	parts := make([]string, 0, 3)
	if job = strings.TrimSpace(job); job != "" {
		parts = append(parts, job)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}
