package logger

import (
	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS DE NEGOCIO
// =================================================================================

// RequestID identifica el challenge OTP que originó la operación.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// AppID crea un campo para el ID de la app partner.
func AppID(v string) zap.Field { return zap.String("app_id", v) }

// ClientID crea un campo para el client_id de una credencial.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// AppUserID crea un campo para el ID interno del AppUser (nunca el external id).
func AppUserID(v string) zap.Field { return zap.String("app_user_id", v) }

// SessionID crea un campo para sesiones OTP, de exchange o web-login.
func SessionID(v string) zap.Field { return zap.String("session_id", v) }

// Purpose crea un campo para el propósito de un token web-login.
func Purpose(v string) zap.Field { return zap.String("purpose", v) }

// Provider crea un campo para el proveedor SMS.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Fingerprint loguea solo los primeros 12 caracteres del fingerprint.
func Fingerprint(v string) zap.Field {
	if len(v) > 12 {
		v = v[:12]
	}
	return zap.String("fp", v)
}

// MaskedPhone deja visibles el prefijo de país y los dos últimos dígitos.
func MaskedPhone(e164 string) zap.Field {
	if len(e164) <= 5 {
		return zap.String("phone", "***")
	}
	return zap.String("phone", e164[:3]+"******"+e164[len(e164)-2:])
}

// =================================================================================
// CAMPOS DE SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer crea un campo para la capa (service, store, sender).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Int64 crea un campo int64 genérico.
func Int64(key string, v int64) zap.Field { return zap.Int64(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
