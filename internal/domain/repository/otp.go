package repository

import (
	"context"
	"time"
)

// OtpRule es el snapshot de reglas guardado en la sesión al crearla.
type OtpRule struct {
	OtpCountLimit    int `json:"otpCountLimit"`
	FailAttemptLimit int `json:"failAttemptLimit"`
	ResendDelaySec   int `json:"resendDelaySec"`
	LifetimeSec      int `json:"lifetimeSec"`
	CodeLength       int `json:"codeLength"`
}

// ResendDelay devuelve el delay como duración.
func (r OtpRule) ResendDelay() time.Duration { return time.Duration(r.ResendDelaySec) * time.Second }

// Lifetime devuelve la vida de la sesión como duración.
func (r OtpRule) Lifetime() time.Duration { return time.Duration(r.LifetimeSec) * time.Second }

// OtpSession es el estado efímero del challenge para un fingerprint.
type OtpSession struct {
	ID               string
	Fingerprint      string
	RequestID        string
	Rule             OtpRule
	OtpCount         int
	FailAttemptCount int
	NextResendAt     *time.Time
	ExpiredAt        time.Time
	Version          int
	CreatedAt        time.Time
}

// Otp es un código emitido; solo se guarda su hash.
type Otp struct {
	ID         string
	SessionID  string
	SequenceNo int
	Signature  string
	CreatedAt  time.Time
}

// NewOtpSessionInput describe una sesión nueva.
type NewOtpSessionInput struct {
	ID          string
	Fingerprint string
	RequestID   string
	Rule        OtpRule
	ExpiredAt   time.Time
	Now         time.Time
}

// IssueOtpInput es el input de IssueOtp.
type IssueOtpInput struct {
	SessionID       string
	ExpectedVersion int
	NextResendAt    time.Time
	Otp             Otp
}

// OtpRepository persiste sesiones OTP y sus códigos.
type OtpRepository interface {
	// FindOrCreateOtpSession devuelve la sesión del fingerprint o la crea.
	FindOrCreateOtpSession(ctx context.Context, in NewOtpSessionInput) (*OtpSession, error)

	// ReplaceOtpSession borra la sesión oldID con sus otps y crea una nueva, en una transacción.
	ReplaceOtpSession(ctx context.Context, oldID string, in NewOtpSessionInput) (*OtpSession, error)

	// GetOtpSession obtiene la sesión del fingerprint con sus otps, más nuevo primero.
	// ErrNotFound si no existe.
	GetOtpSession(ctx context.Context, fingerprint string) (*OtpSession, []Otp, error)

	// IssueOtp inserta el otp y actualiza la sesión (otp_count+1, next_resend_at,
	// version+1) en una transacción. ErrStaleVersion si la versión no coincide.
	IssueOtp(ctx context.Context, in IssueOtpInput) (*OtpSession, error)

	// RecordOtpFailure incrementa fail_attempt_count y version.
	// ErrStaleVersion si la versión no coincide.
	RecordOtpFailure(ctx context.Context, sessionID string, expectedVersion int) (*OtpSession, error)

	// DeleteOtpSession borra la sesión y sus otps. deleted=false si otro caller ya la borró.
	DeleteOtpSession(ctx context.Context, sessionID string) (deleted bool, err error)
}
