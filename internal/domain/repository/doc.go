// Package repository define las entidades y los contratos de persistencia del core.
//
// Las implementaciones viven en internal/store/pg (PostgreSQL, pgx) y
// internal/store/memory (tests y sandbox). Ambas deben respetar las mismas
// garantías transaccionales:
//
//   - una sola OtpSession viva por fingerprint (unique + find-or-create)
//   - IssueOtp y RecordOtpFailure usan la columna version como fence optimista
//   - DeleteOtpSession y DeleteExchangeSession reportan si este caller borró la fila,
//     así exactamente un caller gana una carrera
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Los tiempos los provee el servicio (reloj inyectado), nunca la DB
//   - Errores de dominio están en errors.go
package repository
