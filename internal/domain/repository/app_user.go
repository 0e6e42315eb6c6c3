package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

// AppUser vincula una Identity con una App. ExternalID es lo único que ve el partner.
type AppUser struct {
	ID           string
	AppID        string
	IdentityID   string
	ExternalID   string
	AccessStatus types.AccessStatus
	MarkReset    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FindOrCreateAppUserInput es el input de FindOrCreateAppUser.
type FindOrCreateAppUserInput struct {
	AppID      string
	IdentityID string
	// ExternalID se usa solo si hay que crear la fila.
	ExternalID string
	Now        time.Time
}

// RotateExternalIDInput es el input de RotateAppUserExternalID.
type RotateExternalIDInput struct {
	AppUserID     string
	OldExternalID string
	NewExternalID string
	Now           time.Time
}

// AppUserRepository persiste los bindings App/Identity.
type AppUserRepository interface {
	// GetAppUser obtiene un AppUser por ID. ErrNotFound si no existe.
	GetAppUser(ctx context.Context, id string) (*AppUser, error)

	// FindOrCreateAppUser devuelve el binding (app_id, identity_id), creándolo
	// como Granted si no existe. created indica si esta llamada lo insertó.
	FindOrCreateAppUser(ctx context.Context, in FindOrCreateAppUserInput) (u *AppUser, created bool, err error)

	// MarkAppUserReset marca el binding para rotar su external id en el próximo redeem.
	MarkAppUserReset(ctx context.Context, id string) error

	// SetAppUserAccess cambia el access status.
	SetAppUserAccess(ctx context.Context, id string, status types.AccessStatus) error

	// RotateAppUserExternalID rota el external id, limpia mark_reset y
	// actualiza last_verified_at de la identidad, en una transacción.
	// Retorna ErrConflict si el binding ya no tiene OldExternalID o no está marcado.
	RotateAppUserExternalID(ctx context.Context, in RotateExternalIDInput) (*AppUser, error)
}
