package wbsync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StrategyOutcome records why one task-creation encoding was rejected.
type StrategyOutcome struct {
	Strategy string
	Err      error
}

// TaskCreationFailedError means every request encoding was rejected by the
// remote service. Fatal for the run.
type TaskCreationFailedError struct {
	Outcomes []StrategyOutcome
}

func (e *TaskCreationFailedError) Error() string {
	parts := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		parts = append(parts, fmt.Sprintf("%s: %v", o.Strategy, o.Err))
	}
	return "report task creation failed on all encodings: " + strings.Join(parts, "; ")
}

// ReportFailedError is raised when the remote job reports a terminal failure.
type ReportFailedError struct {
	TaskId string
	Status string
}

func (e *ReportFailedError) Error() string {
	return fmt.Sprintf("report task %s failed (status=%s)", e.TaskId, e.Status)
}

// ReportTimeoutError is raised when the poll budget is exhausted before the
// job reaches a terminal status.
type ReportTimeoutError struct {
	TaskId     string
	LastStatus string
	Elapsed    time.Duration
	Budget     time.Duration
}

func (e *ReportTimeoutError) Error() string {
	return fmt.Sprintf("report task %s timed out after %s (budget %s, last status %q)",
		e.TaskId, e.Elapsed, e.Budget, e.LastStatus)
}

// InvalidReportShapeError indicates upstream contract drift: the downloaded
// payload was not the expected sequence of item records.
type InvalidReportShapeError struct {
	Detail string
}

func (e *InvalidReportShapeError) Error() string {
	return "unexpected report payload shape: " + e.Detail
}

// RetryExhaustedError means the retry budget for one logical request ran out.
// Fatal for the calling operation.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// StoreUpsertError aborts the reconcile loop; remaining batches are not
// attempted. Applied counts how many rows landed before the failure.
type StoreUpsertError struct {
	Batch   int
	Applied int
	Total   int
	Err     error
}

func (e *StoreUpsertError) Error() string {
	return fmt.Sprintf("upsert error on batch %d (%d/%d rows applied): %v",
		e.Batch, e.Applied, e.Total, e.Err)
}

func (e *StoreUpsertError) Unwrap() error { return e.Err }

// httpStatusError is a non-retryable HTTP response (4xx other than 429).
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// IsFatal reports whether err must abort the whole pipeline run. Everything
// the pipeline returns is fatal except the advisory cases, which are never
// returned as errors in the first place.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		taskErr    *TaskCreationFailedError
		failedErr  *ReportFailedError
		timeoutErr *ReportTimeoutError
		shapeErr   *InvalidReportShapeError
		retryErr   *RetryExhaustedError
		storeErr   *StoreUpsertError
	)
	return errors.As(err, &taskErr) ||
		errors.As(err, &failedErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &shapeErr) ||
		errors.As(err, &retryErr) ||
		errors.As(err, &storeErr)
}
