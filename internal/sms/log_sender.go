package sms

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/phonepass/internal/observability/logger"
)

// LogSender no envía nada: deja el mensaje en el log. Para sandbox y dev.
type LogSender struct {
	// IncludeText agrega el texto (con el código) al log. Nunca en prod.
	IncludeText bool
}

func NewLogSender(includeText bool) *LogSender {
	return &LogSender{IncludeText: includeText}
}

func (s *LogSender) Send(ctx context.Context, phone, text string, md Metadata) (DeliveryResult, error) {
	id := uuid.NewString()
	fields := []zap.Field{
		logger.Component("sms"),
		logger.Provider("log"),
		logger.MaskedPhone(phone),
		logger.RequestID(md.RequestID),
		logger.String("message_id", id),
	}
	if s.IncludeText {
		fields = append(fields, logger.String("text", text))
	}
	logger.From(ctx).Info("sms (log provider)", fields...)
	return DeliveryResult{Provider: "log", MessageID: id}, nil
}
