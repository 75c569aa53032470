package errors

import (
	"net/http"
	"strconv"
)

// Errors carry a stable code plus params; messages are English and for
// operators, not end users.

// Flag and event codes.
const (
	CodeFlagNotFound       = "FLAG_NOT_FOUND"
	CodeExperimentNotFound = "EXPERIMENT_NOT_FOUND"
	CodeExposureNotFound   = "EXPOSURE_NOT_FOUND"
)

// Request validation codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidDateRange = "INVALID_DATE_RANGE"
	CodeBatchTooLarge    = "BATCH_TOO_LARGE"
)

// Infrastructure codes.
const (
	CodeSchedulerUnavailable = "SCHEDULER_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

func notFound(code, message, id string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]any{"id": id},
		Err:        ErrNotFound,
	}
}

// ErrFlagNotFound reports a missing flag by key or id.
func ErrFlagNotFound(keyOrID string) *AppError {
	return notFound(CodeFlagNotFound, "feature flag not found", keyOrID)
}

// ErrExperimentNotFound reports a missing experiment.
func ErrExperimentNotFound(id string) *AppError {
	return notFound(CodeExperimentNotFound, "experiment not found", id)
}

// ErrExposureNotFound reports a missing exposure.
func ErrExposureNotFound(id string) *AppError {
	return notFound(CodeExposureNotFound, "exposure not found", id)
}

// ErrInvalidRequest wraps a binding or validation failure.
func ErrInvalidRequest(err error) *AppError {
	appErr := BadRequest(CodeInvalidRequest, "invalid request body")
	appErr.Err = err
	return appErr
}

// ErrInvalidDateRange rejects a backfill whose start is after its end.
func ErrInvalidDateRange(start, end string) *AppError {
	return BadRequest(CodeInvalidDateRange, "start date must not be after end date").
		WithParams(map[string]any{"start_date": start, "end_date": end})
}

// ErrBatchTooLarge rejects a batch above the configured item limit.
func ErrBatchTooLarge(limit int) *AppError {
	return TooLarge(CodeBatchTooLarge, "batch exceeds "+strconv.Itoa(limit)+" items").
		WithParams(map[string]any{"limit": limit})
}

// ErrSchedulerUnavailable is returned when aggregation jobs cannot be queued.
func ErrSchedulerUnavailable() *AppError {
	return Unavailable(CodeSchedulerUnavailable, "aggregation scheduler is not running")
}
