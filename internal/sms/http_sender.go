package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dropDatabas3/phonepass/internal/observability/logger"
)

// HTTPConfig configura un gateway SMS con API JSON.
type HTTPConfig struct {
	URL        string
	APIKey     string
	Sender     string
	Timeout    time.Duration
	RetryCount int
}

// HTTPSender hace POST JSON al gateway.
type HTTPSender struct {
	cfg    HTTPConfig
	client *resty.Client
}

type gatewayRequest struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Text      string `json:"text"`
	Reference string `json:"reference,omitempty"`
}

type gatewayResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPSender valida la config y arma el cliente resty.
func NewHTTPSender(cfg HTTPConfig) (*HTTPSender, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("sms: http url requerida")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.AddRetryCondition(retryCondition)
	return &HTTPSender{cfg: cfg, client: client}, nil
}

// retryCondition reintenta errores de red, 5xx y 429.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

func (s *HTTPSender) Send(ctx context.Context, phone, text string, md Metadata) (DeliveryResult, error) {
	log := logger.From(ctx).With(logger.Component("sms"), logger.Provider("http"), logger.MaskedPhone(phone))

	var out gatewayResponse
	var gwErr gatewayError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(gatewayRequest{To: phone, From: s.cfg.Sender, Text: text, Reference: md.RequestID}).
		SetResult(&out).
		SetError(&gwErr).
		Post(s.cfg.URL)
	if err != nil {
		log.Warn("gateway sms no disponible", logger.Err(err))
		return DeliveryResult{Provider: "http"}, fmt.Errorf("sms http: %w", err)
	}
	if resp.IsError() {
		log.Warn("gateway sms rechazó el envío",
			logger.Int("status", resp.StatusCode()),
			logger.String("code", gwErr.Code),
		)
		return DeliveryResult{Provider: "http"}, fmt.Errorf("%w: status %d %s", ErrRejected, resp.StatusCode(), gwErr.Message)
	}
	log.Debug("sms enviado", logger.String("message_id", out.MessageID))
	return DeliveryResult{Provider: "http", MessageID: out.MessageID}, nil
}
