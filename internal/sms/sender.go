// Package sms implementa los adapters de envío de SMS (log, gateway HTTP y
// email-to-SMS). La entrega es best-effort: el llamador decide qué hacer si falla.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/phonepass/internal/metrics"
)

// DefaultTemplate es el texto por defecto del SMS.
const DefaultTemplate = "Tu código de verificación es {{code}}"

// Metadata acompaña un envío para trazabilidad.
type Metadata struct {
	RequestID string
	Purpose   string
}

// DeliveryResult describe un envío aceptado por el provider.
type DeliveryResult struct {
	Provider  string
	MessageID string
}

// Sender envía un SMS ya renderizado.
type Sender interface {
	Send(ctx context.Context, phoneE164, text string, md Metadata) (DeliveryResult, error)
}

// ErrRejected indica que el provider rechazó el mensaje.
var ErrRejected = errors.New("sms: rejected by provider")

// Render arma el texto reemplazando {{code}}.
func Render(template, code string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	if !strings.Contains(template, "{{code}}") {
		return template + " " + code
	}
	return strings.ReplaceAll(template, "{{code}}", code)
}

// Config selecciona y configura el provider.
type Config struct {
	Provider string // log|http|mail
	Env      string
	HTTP     HTTPConfig
	Mail     MailConfig
}

// New crea el Sender según cfg.Provider.
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "log":
		return NewLogSender(cfg.Env != "prod"), nil
	case "http":
		return NewHTTPSender(cfg.HTTP)
	case "mail":
		return NewMailSender(cfg.Mail)
	default:
		return nil, fmt.Errorf("sms: provider desconocido %q", cfg.Provider)
	}
}

type instrumented struct {
	next    Sender
	metrics *metrics.Metrics
	now     func() time.Time
}

// WithMetrics decora s contando entregas y latencia.
func WithMetrics(s Sender, m *metrics.Metrics) Sender {
	if m == nil {
		return s
	}
	return &instrumented{next: s, metrics: m, now: time.Now}
}

func (i *instrumented) Send(ctx context.Context, phone, text string, md Metadata) (DeliveryResult, error) {
	start := i.now()
	res, err := i.next.Send(ctx, phone, text, md)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	provider := res.Provider
	if provider == "" {
		provider = "unknown"
	}
	i.metrics.SmsDelivery(provider, result, float64(i.now().Sub(start).Milliseconds()))
	return res, err
}
