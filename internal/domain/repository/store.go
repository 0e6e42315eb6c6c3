package repository

import "context"

// Store agrupa todos los repositorios del core.
type Store interface {
	IdentityRepository
	AppRepository
	AppUserRepository
	OtpRepository
	ExchangeRepository
	SmsTransactionRepository

	Ping(ctx context.Context) error
	Close()
}
