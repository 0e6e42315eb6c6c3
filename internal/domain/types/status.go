// Package types define tipos de dominio compartidos entre paquetes.
package types

// IdentityStatus es el estado de una Identity.
type IdentityStatus string

const (
	IdentityUnverified IdentityStatus = "unverified"
	IdentityVerified   IdentityStatus = "verified"
	IdentitySuspended  IdentityStatus = "suspended"
)

func (s IdentityStatus) IsValid() bool {
	switch s {
	case IdentityUnverified, IdentityVerified, IdentitySuspended:
		return true
	}
	return false
}

// CredentialType distingue el uso de una AppCredential.
type CredentialType string

const (
	// CredentialServer autentica al backend del partner (redeem de exchange tokens).
	CredentialServer CredentialType = "server"
	// CredentialMobileSDK la usa el SDK embebido en apps móviles.
	CredentialMobileSDK CredentialType = "mobile_sdk"
	// CredentialWebLogin firma los tokens del flujo web.
	CredentialWebLogin CredentialType = "web_login"
)

// IsValid retorna true si el tipo es conocido.
func (t CredentialType) IsValid() bool {
	switch t {
	case CredentialServer, CredentialMobileSDK, CredentialWebLogin:
		return true
	}
	return false
}

// CredentialStatus es el estado de una AppCredential.
type CredentialStatus string

const (
	CredentialActive   CredentialStatus = "active"
	CredentialInactive CredentialStatus = "inactive"
)

// IsValid retorna true si el estado es conocido.
func (s CredentialStatus) IsValid() bool {
	return s == CredentialActive || s == CredentialInactive
}

// AccessStatus controla si un AppUser puede seguir usando la app.
type AccessStatus string

const (
	AccessGranted AccessStatus = "granted"
	AccessDenied  AccessStatus = "denied"
)

func (s AccessStatus) IsValid() bool {
	return s == AccessGranted || s == AccessDenied
}

// AppStatus es el estado del tenant (solo lectura para el core).
type AppStatus string

const (
	AppActive   AppStatus = "active"
	AppDisabled AppStatus = "disabled"
)

// SmsStatus es el resultado de una entrega SMS.
type SmsStatus string

const (
	SmsSent   SmsStatus = "sent"
	SmsFailed SmsStatus = "failed"
)
