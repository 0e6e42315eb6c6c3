package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

// SmsTransaction es el registro lateral de cada intento de entrega.
type SmsTransaction struct {
	ID                string
	RequestID         string
	Fingerprint       string
	Provider          string
	Status            types.SmsStatus
	ProviderMessageID string
	Error             string
	CreatedAt         time.Time
}

// SmsTransactionRepository registra entregas SMS.
type SmsTransactionRepository interface {
	RecordSmsTransaction(ctx context.Context, tx SmsTransaction) error
}
