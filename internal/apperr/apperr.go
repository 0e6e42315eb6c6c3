// Package apperr define la taxonomía de errores que devuelven los servicios
// del core. Los errores de repositorio (sentinelas en domain/repository) se
// traducen a estos kinds en la capa de servicio.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind clasifica el error; es lo que el borde HTTP traduce a status.
type Kind string

const (
	KindInvalidCredential Kind = "invalid_credential"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindRateLimited       Kind = "rate_limited"
	KindSessionNotFound   Kind = "session_not_found"
	KindSessionExpired    Kind = "session_expired"
	KindInvalidToken      Kind = "invalid_token"
	KindTokenExpired      Kind = "token_expired"
	KindInvalidCode       Kind = "invalid_code"
	KindValidationFailed  Kind = "validation_failed"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// Reason detalla un RateLimited.
type Reason string

const (
	ReasonOtpCountExceeded     Reason = "otp_count_exceeded"
	ReasonResendTooSoon        Reason = "resend_too_soon"
	ReasonFailAttemptsExceeded Reason = "fail_attempts_exceeded"
	ReasonRequestThrottled     Reason = "request_throttled"
)

// Error es el error tipado del core.
type Error struct {
	Kind    Kind
	Reason  Reason
	Op      string
	Message string
	// RetryAt solo se completa en RateLimited cuando se conoce el próximo intento válido.
	RetryAt time.Time
	Err     error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Reason != "" {
		s += "(" + string(e.Reason) + ")"
	}
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matchea por Kind, y por Reason si el target la define.
// Permite errors.Is(err, apperr.ErrInvalidToken).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Sentinelas para errors.Is.
var (
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrOtpCountExceeded     = &Error{Kind: KindRateLimited, Reason: ReasonOtpCountExceeded}
	ErrResendTooSoon        = &Error{Kind: KindRateLimited, Reason: ReasonResendTooSoon}
	ErrFailAttemptsExceeded = &Error{Kind: KindRateLimited, Reason: ReasonFailAttemptsExceeded}
	ErrRequestThrottled     = &Error{Kind: KindRateLimited, Reason: ReasonRequestThrottled}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound}
	ErrSessionExpired       = &Error{Kind: KindSessionExpired}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrInvalidCode          = &Error{Kind: KindInvalidCode}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInternal             = &Error{Kind: KindInternal}
)

// New crea un error del kind dado.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// Wrap crea un error del kind dado conservando la causa.
func Wrap(err error, kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// RateLimited crea un RateLimited con su razón. retryAt puede ser cero.
func RateLimited(op string, reason Reason, retryAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Reason: reason, Op: op, RetryAt: retryAt}
}

// Internal envuelve fallas de storage u otras no recuperables.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf devuelve el kind de err. Errores ajenos cuentan como Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf devuelve la razón de un RateLimited, o "".
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reporta si err es del kind dado.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus mapea el kind al status que usa el borde HTTP.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindInvalidCredential, KindUnauthorized, KindInvalidToken, KindTokenExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindSessionNotFound, KindNotFound:
		return http.StatusNotFound
	case KindSessionExpired:
		return http.StatusGone
	case KindInvalidCode, KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code es el código estable para respuestas: "rate_limited.resend_too_soon", "invalid_token", etc.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return fmt.Sprintf("%s.%s", e.Kind, e.Reason)
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return string(KindInternal)
}
