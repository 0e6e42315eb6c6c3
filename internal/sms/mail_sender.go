package sms

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/observability/logger"
)

// MailConfig configura un gateway email-to-SMS (número@dominio).
type MailConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	GatewayDomain string
	TLSMode       string // auto|starttls|ssl|none
}

type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// MailSender entrega el SMS como email al gateway del operador.
type MailSender struct {
	cfg  MailConfig
	dial func() mailDialer
}

func NewMailSender(cfg MailConfig) (*MailSender, error) {
	if cfg.Host == "" || cfg.GatewayDomain == "" || cfg.From == "" {
		return nil, errors.New("sms: mail requiere host, from y gateway_domain")
	}
	s := &MailSender{cfg: cfg}
	s.dial = s.newDialer
	return s, nil
}

func (s *MailSender) newDialer() mailDialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = nil
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return d
}

// gatewayAddress convierte +5491122334455 en 5491122334455@dominio.
func gatewayAddress(phone, domain string) string {
	return strings.TrimPrefix(phone, "+") + "@" + domain
}

func (s *MailSender) Send(ctx context.Context, phone, text string, md Metadata) (DeliveryResult, error) {
	id := uuid.NewString()
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", gatewayAddress(phone, s.cfg.GatewayDomain))
	m.SetHeader("Message-ID", "<"+id+"@"+s.cfg.GatewayDomain+">")
	if md.RequestID != "" {
		m.SetHeader("X-Request-ID", md.RequestID)
	}
	m.SetBody("text/plain", text)

	if err := s.dial().DialAndSend(m); err != nil {
		logger.From(ctx).Warn("smtp send failed",
			logger.Component("sms"), logger.Provider("mail"), logger.MaskedPhone(phone), logger.Err(err))
		return DeliveryResult{Provider: "mail"}, fmt.Errorf("sms mail: %w", err)
	}
	return DeliveryResult{Provider: "mail", MessageID: id}, nil
}
