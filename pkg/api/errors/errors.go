// Package errors builds error responses of karfab API.
//
// Every error response has a body like
//
//	{"message": {"reason": "...", "advice": "...", "subject": "..."}}
//
// where "advice" and "subject" are optional.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

type ErrorMessage struct {
	// what happened.
	Reason string `json:"reason"`

	// what the client can do.
	Advice string `json:"advice,omitempty"`

	// which resource (LSID, file name, auth domain...) the error is about.
	Subject string `json:"subject,omitempty"`

	Cause error `json:"-"`
}

var errNoReason = errors.New(`required field missing: "reason"`)

func (em *ErrorMessage) UnmarshalJSON(b []byte) error {
	type plain ErrorMessage
	raw := struct {
		plain
		Reason *string `json:"reason"`
	}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Reason == nil {
		return errNoReason
	}
	*em = ErrorMessage(raw.plain)
	em.Reason = *raw.Reason
	return nil
}

func (e ErrorMessage) String() string {
	sb := new(strings.Builder)
	sb.WriteString(e.Reason)
	if e.Subject != "" {
		fmt.Fprintf(sb, " (%s)", e.Subject)
	}
	if e.Advice != "" {
		sb.WriteString("\n" + e.Advice)
	}
	if e.Cause != nil {
		sb.WriteString("\n caused by: " + e.Cause.Error())
	}
	return sb.String()
}

func (e ErrorMessage) Error() string {
	return e.String()
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

type ErrorMessageOption func(*ErrorMessage)

func WithAdvice(advice string) ErrorMessageOption {
	return func(m *ErrorMessage) {
		if advice != "" {
			m.Advice = advice
		}
	}
}

func WithSubject(subject string) ErrorMessageOption {
	return func(m *ErrorMessage) {
		m.Subject = subject
	}
}

func WithError(err error) ErrorMessageOption {
	return func(m *ErrorMessage) {
		if err != nil {
			m.Cause = err
		}
	}
}

// NewErrorMessage creates *echo.HTTPError whose message is ErrorMessage.
//
// The ErrorMessage is also set as the internal error, so errors.Is and errors.As
// can see the cause.
func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason}
	for _, opt := range opts {
		opt(&msg)
	}
	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func NotFound(opts ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, "not found", opts...)
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusBadRequest, "bad request",
		WithAdvice(advice), WithError(err),
	)
}

func Unauthorized(reason string, err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusUnauthorized, reason, WithError(err))
}

func Conflict(reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(http.StatusConflict, reason, opts...)
}

// TooLarge tells the request body exceeds limit bytes.
func TooLarge(limit int64, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusRequestEntityTooLarge, "request body is too large",
		WithAdvice(fmt.Sprintf("it should be at most %d bytes", limit)),
		WithError(err),
	)
}

// UnprocessableEntity tells the request is well-formed, but its subject
// (an archive or an object in it) cannot be used.
func UnprocessableEntity(reason string, err error, opts ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusUnprocessableEntity, reason,
		append([]ErrorMessageOption{WithError(err)}, opts...)...,
	)
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusInternalServerError, "unexpected error", WithError(err))
}

func ServiceUnavailable(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusServiceUnavailable, "service unavailable temporarily",
		WithAdvice(advice), WithError(err),
	)
}
