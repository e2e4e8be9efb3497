package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the operation failure surfaced to the HTTP layer. Status is the
// HTTP status the failure maps to; upstream failures additionally carry the
// collaborator's status and message.
type Error struct {
	Status         int
	Reason         string
	UpstreamStatus int
	UpstreamReason string

	err error
}

func (e *Error) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("%s (upstream %d: %s)", e.Reason, e.UpstreamStatus, e.UpstreamReason)
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.err
}

// ErrorStatus returns the HTTP status carried by err, or 500 when err is not
// an operation failure.
func ErrorStatus(err error) int {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr.Status
	}
	return http.StatusInternalServerError
}

// IsErrWithStatus reports whether err is an operation failure mapping to the
// given HTTP status.
func IsErrWithStatus(err error, status int) bool {
	var oerr *Error
	return errors.As(err, &oerr) && oerr.Status == status
}

func badRequestf(format string, v ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Reason: fmt.Sprintf(format, v...)}
}

func unprocessablef(format string, v ...any) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Reason: fmt.Sprintf(format, v...)}
}

func notFoundf(format string, v ...any) *Error {
	return &Error{Status: http.StatusNotFound, Reason: fmt.Sprintf(format, v...)}
}

func conflictf(format string, v ...any) *Error {
	return &Error{Status: http.StatusConflict, Reason: fmt.Sprintf(format, v...)}
}

// upstreamError converts a gateway failure into a 502 carrying the upstream
// status code when the gateway reported one.
func upstreamError(err error, reason string) *Error {
	oerr := &Error{
		Status:         http.StatusBadGateway,
		Reason:         reason,
		UpstreamReason: err.Error(),
		err:            err,
	}
	if sc, ok := upstreamStatusCode(err); ok {
		oerr.UpstreamStatus = sc
	}
	return oerr
}

// statusCoder is implemented by the gateway error types.
type statusCoder interface {
	StatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}
