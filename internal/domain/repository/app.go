package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

// AppConfig es la configuración del partner que consume el core.
type AppConfig struct {
	EnvironmentID     string `json:"environmentId"`
	WebRedirectURL    string `json:"webRedirectUrl,omitempty"`
	MobileRedirectURL string `json:"mobileRedirectUrl,omitempty"`
}

// App es el tenant. Lo administra la consola; el core solo lo lee.
type App struct {
	ID         string
	ExternalID string
	OwnerID    string
	Status     types.AppStatus
	Config     AppConfig
	CreatedAt  time.Time
}

// AppCredential es una credencial tipada del partner.
type AppCredential struct {
	ID           string
	AppID        string
	Type         types.CredentialType
	ClientID     string
	ClientSecret string
	Status       types.CredentialStatus
	CreatedAt    time.Time
}

// IsActive reporta si la credencial puede usarse.
func (c *AppCredential) IsActive() bool {
	return c != nil && c.Status == types.CredentialActive
}

// AppRepository expone apps y credenciales.
type AppRepository interface {
	// GetApp obtiene una app por ID. ErrNotFound si no existe.
	GetApp(ctx context.Context, id string) (*App, error)

	// GetCredential obtiene una credencial por ID. ErrNotFound si no existe.
	GetCredential(ctx context.Context, id string) (*AppCredential, error)

	// GetCredentialByClientID obtiene una credencial por client_id. ErrNotFound si no existe.
	GetCredentialByClientID(ctx context.Context, clientID string) (*AppCredential, error)

	// RotateCredentialSecret reemplaza el secreto. Invalida tokens web-login en vuelo.
	RotateCredentialSecret(ctx context.Context, clientID, newSecret string) error

	// SetCredentialStatus activa o desactiva una credencial.
	SetCredentialStatus(ctx context.Context, clientID string, status types.CredentialStatus) error
}
