package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del core. Viven en un paquete propio para evitar ciclos entre
// otp, exchange, weblogin y sms.

// Resultados usados como label "result".
const (
	ResultOK          = "ok"
	ResultRateLimited = "rate_limited"
	ResultInvalid     = "invalid"
	ResultLocked      = "locked"
	ResultExpired     = "expired"
	ResultNotFound    = "not_found"
	ResultForbidden   = "forbidden"
	ResultError       = "error"
)

// Metrics agrupa los collectors. Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	OtpChallenges       *prometheus.CounterVec
	OtpVerifications    *prometheus.CounterVec
	ExchangeRedemptions *prometheus.CounterVec
	SmsDeliveries       *prometheus.CounterVec
	WebLoginValidations *prometheus.CounterVec
	SmsLatency          prometheus.Histogram
}

// New crea los collectors y los registra en reg (o el default si es nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		OtpChallenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phonepass_otp_challenges_total",
			Help: "Solicitudes de OTP por resultado",
		}, []string{"result"}),
		OtpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phonepass_otp_verifications_total",
			Help: "Verificaciones de OTP por resultado",
		}, []string{"result"}),
		ExchangeRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phonepass_exchange_redemptions_total",
			Help: "Canjes de exchange token por resultado",
		}, []string{"result"}),
		SmsDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phonepass_sms_deliveries_total",
			Help: "Envíos de SMS por provider y resultado",
		}, []string{"provider", "result"}),
		WebLoginValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phonepass_weblogin_validations_total",
			Help: "Validaciones de token web-login por propósito y resultado",
		}, []string{"purpose", "result"}),
		SmsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "phonepass_sms_send_latency_ms",
			Help:    "Latencia de envío de SMS en milisegundos",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}),
	}
	var err error
	if m.OtpChallenges, err = register(reg, m.OtpChallenges); err != nil {
		return nil, err
	}
	if m.OtpVerifications, err = register(reg, m.OtpVerifications); err != nil {
		return nil, err
	}
	if m.ExchangeRedemptions, err = register(reg, m.ExchangeRedemptions); err != nil {
		return nil, err
	}
	if m.SmsDeliveries, err = register(reg, m.SmsDeliveries); err != nil {
		return nil, err
	}
	if m.WebLoginValidations, err = register(reg, m.WebLoginValidations); err != nil {
		return nil, err
	}
	if m.SmsLatency, err = register(reg, m.SmsLatency); err != nil {
		return nil, err
	}
	return m, nil
}

// register registra c; si ya existía devuelve el collector registrado.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) OtpChallenge(result string) {
	if m != nil {
		m.OtpChallenges.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) OtpVerification(result string) {
	if m != nil {
		m.OtpVerifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ExchangeRedemption(result string) {
	if m != nil {
		m.ExchangeRedemptions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SmsDelivery(provider, result string, latencyMs float64) {
	if m != nil {
		m.SmsDeliveries.WithLabelValues(provider, result).Inc()
		m.SmsLatency.Observe(latencyMs)
	}
}

func (m *Metrics) WebLoginValidation(purpose, result string) {
	if m != nil {
		m.WebLoginValidations.WithLabelValues(purpose, result).Inc()
	}
}
