// Package logger expone un logger Zap singleton con scoping por contexto.
//
// Se inicializa una vez en main con Init; los servicios obtienen el logger
// con From(ctx) y agregan layer/op:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("otp.request"))
//	log.Info("challenge issued", logger.RequestID(id), logger.Fingerprint(fp))
//
// Nunca se loguean teléfonos, códigos OTP, secretos ni tokens. Para el
// fingerprint existe un helper que solo emite un prefijo corto.
package logger
