package otp

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
)

// Rules son los límites del challenge. Se copian a la sesión al crearla:
// cambiar la config no afecta sesiones vivas.
type Rules struct {
	OtpCountLimit    int
	FailAttemptLimit int
	ResendDelay      time.Duration
	SessionLifetime  time.Duration
	CodeLength       int
}

// DefaultRules: 3 envíos, 5 intentos, 60s entre reenvíos, 5 minutos de vida, 6 dígitos.
func DefaultRules() Rules {
	return Rules{
		OtpCountLimit:    3,
		FailAttemptLimit: 5,
		ResendDelay:      60 * time.Second,
		SessionLifetime:  300 * time.Second,
		CodeLength:       6,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.OtpCountLimit < 1:
		return fmt.Errorf("otp: otp_count_limit debe ser >= 1")
	case r.FailAttemptLimit < 1:
		return fmt.Errorf("otp: fail_attempt_limit debe ser >= 1")
	case r.ResendDelay < 0:
		return fmt.Errorf("otp: resend_delay negativo")
	case r.SessionLifetime <= 0:
		return fmt.Errorf("otp: session_lifetime debe ser > 0")
	case r.CodeLength < 4 || r.CodeLength > 6:
		return fmt.Errorf("otp: code_length debe estar entre 4 y 6")
	}
	return nil
}

func (r Rules) snapshot() repository.OtpRule {
	return repository.OtpRule{
		OtpCountLimit:    r.OtpCountLimit,
		FailAttemptLimit: r.FailAttemptLimit,
		ResendDelaySec:   int(r.ResendDelay / time.Second),
		LifetimeSec:      int(r.SessionLifetime / time.Second),
		CodeLength:       r.CodeLength,
	}
}

// effective completa un snapshot vacío (filas previas a la columna rule) con las reglas actuales.
func (r Rules) effective(s repository.OtpRule) repository.OtpRule {
	if s.OtpCountLimit == 0 || s.FailAttemptLimit == 0 || s.CodeLength == 0 {
		return r.snapshot()
	}
	return s
}
