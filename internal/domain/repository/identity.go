package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

// Identity es la identidad pseudónima derivada de un teléfono.
type Identity struct {
	ID                 string
	Fingerprint        string
	FingerprintVersion int
	CountryCode        string
	Status             types.IdentityStatus
	LastVerifiedAt     *time.Time
	CreatedAt          time.Time
}

// VerifiedIdentityInput es el input de UpsertVerifiedIdentity.
type VerifiedIdentityInput struct {
	Fingerprint        string
	FingerprintVersion int
	CountryCode        string
	VerifiedAt         time.Time
}

// IdentityRepository persiste identidades. Nunca se borran físicamente.
type IdentityRepository interface {
	// GetIdentity obtiene una identidad por ID. ErrNotFound si no existe.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// GetIdentityByFingerprint obtiene una identidad por fingerprint. ErrNotFound si no existe.
	GetIdentityByFingerprint(ctx context.Context, fingerprint string) (*Identity, error)

	// UpsertVerifiedIdentity crea la identidad como Verified o, si ya existe,
	// actualiza last_verified_at. Una identidad Suspended conserva su estado.
	UpsertVerifiedIdentity(ctx context.Context, in VerifiedIdentityInput) (*Identity, error)

	// SetIdentityStatus cambia el estado (soporte/ops).
	SetIdentityStatus(ctx context.Context, id string, status types.IdentityStatus) error
}
