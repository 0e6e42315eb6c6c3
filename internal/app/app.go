// Package app arma el core a partir de la Config: store, cache, limiter,
// sender, hashers y servicios. Es el único lugar que conoce a todos.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/phonepass/internal/appcache"
	"github.com/dropDatabas3/phonepass/internal/authflow"
	"github.com/dropDatabas3/phonepass/internal/cache"
	"github.com/dropDatabas3/phonepass/internal/config"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/exchange"
	"github.com/dropDatabas3/phonepass/internal/metrics"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
	"github.com/dropDatabas3/phonepass/internal/otp"
	"github.com/dropDatabas3/phonepass/internal/rate"
	"github.com/dropDatabas3/phonepass/internal/security/fingerprint"
	"github.com/dropDatabas3/phonepass/internal/security/otphash"
	"github.com/dropDatabas3/phonepass/internal/security/secretbox"
	"github.com/dropDatabas3/phonepass/internal/sms"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
	"github.com/dropDatabas3/phonepass/internal/store/pg"
	"github.com/dropDatabas3/phonepass/internal/weblogin"
)

// Options permite inyectar piezas en tests o en un host que embebe el core.
type Options struct {
	// Registerer para las métricas; nil usa el default de prometheus.
	Registerer prometheus.Registerer
	// Store reemplaza el que indica storage.driver.
	Store repository.Store
	// Sender reemplaza el provider de sms.provider.
	Sender sms.Sender
	Now    func() time.Time
}

// Services son las operaciones del core que consume la capa HTTP.
type Services struct {
	OTP      *otp.Engine
	Exchange *exchange.Protocol
	WebLogin *weblogin.Signer
	Flow     *authflow.Service
	Apps     *appcache.Resolver
}

// App es el core cableado.
type App struct {
	Config   *config.Config
	Store    repository.Store
	Cache    cache.Client
	Metrics  *metrics.Metrics
	Services Services

	closers []func() error
}

// Build cablea todo. Si falla a mitad de camino libera lo que ya abrió.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// ─── Store ───
	switch {
	case opts.Store != nil:
		a.Store = opts.Store
	case cfg.Storage.Driver == "postgres":
		st, err := pg.Open(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.Store = st
	default:
		log.Warn("usando store en memoria; los datos no sobreviven al proceso")
		a.Store = memory.New()
	}
	a.closers = append(a.closers, func() error { a.Store.Close(); return nil })

	// ─── Cache + limiter ───
	var limiter rate.Limiter = rate.Noop{}
	throttleMax := cfg.OTP.Throttle.Limit
	throttleWin := config.Dur(cfg.OTP.Throttle.Window)
	if cfg.Cache.Kind == "redis" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		a.closers = append(a.closers, rc.Close)
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.Cache = cache.NewRedisWithClient(rc, cfg.Cache.Redis.Prefix, config.Dur(cfg.Cache.Memory.DefaultTTL))
		if cfg.OTP.Throttle.Enabled {
			limiter = rate.NewRedisLimiter(rc, cfg.Cache.Redis.Prefix+"rl:", throttleMax, throttleWin)
		}
	} else {
		a.Cache = cache.NewMemory("", config.Dur(cfg.Cache.Memory.DefaultTTL))
		a.closers = append(a.closers, a.Cache.Close)
		if cfg.OTP.Throttle.Enabled {
			limiter = rate.NewMemoryLimiter(throttleMax, throttleWin)
		}
	}

	// ─── Métricas ───
	if a.Metrics, err = metrics.New(opts.Registerer); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// ─── Cripto ───
	fps, err := BuildFingerprints(cfg)
	if err != nil {
		return nil, err
	}
	codes, err := otphash.New(otphash.Params{
		Memory:      cfg.OTP.Argon2.Memory,
		Time:        cfg.OTP.Argon2.Time,
		Parallelism: cfg.OTP.Argon2.Parallelism,
		KeyLen:      32,
	}, []byte(cfg.OTP.Pepper))
	if err != nil {
		return nil, err
	}
	key, err := secretbox.ParseKey(cfg.Exchange.Key)
	if err != nil {
		return nil, fmt.Errorf("exchange.key: %w", err)
	}
	box, err := secretbox.New(key)
	if err != nil {
		return nil, err
	}

	// ─── SMS ───
	sender := opts.Sender
	if sender == nil {
		sender, err = sms.New(sms.Config{
			Provider: cfg.SMS.Provider,
			Env:      cfg.App.Env,
			HTTP: sms.HTTPConfig{
				URL:        cfg.SMS.HTTP.URL,
				APIKey:     cfg.SMS.HTTP.APIKey,
				Sender:     cfg.SMS.HTTP.Sender,
				Timeout:    config.Dur(cfg.SMS.HTTP.Timeout),
				RetryCount: cfg.SMS.HTTP.RetryCount,
			},
			Mail: sms.MailConfig{
				Host:          cfg.SMS.Mail.Host,
				Port:          cfg.SMS.Mail.Port,
				Username:      cfg.SMS.Mail.Username,
				Password:      cfg.SMS.Mail.Password,
				From:          cfg.SMS.Mail.From,
				GatewayDomain: cfg.SMS.Mail.GatewayDomain,
				TLSMode:       cfg.SMS.Mail.TLS,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	sender = sms.WithMetrics(sender, a.Metrics)

	// ─── Servicios ───
	s := &a.Services
	s.Apps = appcache.New(a.Store, a.Cache, config.Dur(cfg.Cache.AppTTL))
	if s.OTP, err = otp.New(otp.Deps{
		Store:        a.Store,
		Fingerprints: fps,
		Codes:        codes,
		Sender:       sender,
		Limiter:      limiter,
		Metrics:      a.Metrics,
		Rules: otp.Rules{
			OtpCountLimit:    cfg.OTP.OtpCountLimit,
			FailAttemptLimit: cfg.OTP.FailAttemptLimit,
			ResendDelay:      config.Dur(cfg.OTP.ResendDelay),
			SessionLifetime:  config.Dur(cfg.OTP.SessionLifetime),
			CodeLength:       cfg.OTP.CodeLength,
		},
		DefaultRegion:   cfg.Identity.DefaultRegion,
		MessageTemplate: cfg.OTP.MessageTemplate,
		SandboxEchoCode: cfg.OTP.SandboxEchoCode,
		Now:             opts.Now,
	}); err != nil {
		return nil, err
	}
	if s.Exchange, err = exchange.New(exchange.Deps{
		Store:    a.Store,
		Box:      box,
		Lifetime: config.Dur(cfg.Exchange.Lifetime),
		Metrics:  a.Metrics,
		Now:      opts.Now,
	}); err != nil {
		return nil, err
	}
	if s.WebLogin, err = weblogin.New(weblogin.Deps{
		Credentials:   a.Store,
		Apps:          s.Apps,
		SigningSecret: []byte(cfg.WebLogin.SigningSecret),
		ServerSalt:    cfg.WebLogin.ServerSalt,
		Lifetime:      config.Dur(cfg.WebLogin.Lifetime),
		Metrics:       a.Metrics,
		Now:           opts.Now,
	}); err != nil {
		return nil, err
	}
	if s.Flow, err = authflow.New(authflow.Deps{
		Store:    a.Store,
		OTP:      s.OTP,
		Exchange: s.Exchange,
		WebLogin: s.WebLogin,
		Now:      opts.Now,
	}); err != nil {
		return nil, err
	}

	log.Info("core listo",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("sms", cfg.SMS.Provider),
		logger.Int("fingerprint_version", fps.CurrentVersion()),
		logger.Bool("throttle", cfg.OTP.Throttle.Enabled),
	)
	return a, nil
}

// BuildFingerprints arma el hasher con el esquema actual y los legacy.
func BuildFingerprints(cfg *config.Config) (*fingerprint.Hasher, error) {
	toScheme := func(s config.IdentityScheme) fingerprint.Scheme {
		return fingerprint.Scheme{
			Version: s.Version,
			Secret:  []byte(s.Secret),
			Salt1:   []byte(s.Salt1),
			Salt2:   []byte(s.Salt2),
			Repeat:  s.Repeat,
		}
	}
	legacy := make([]fingerprint.Scheme, 0, len(cfg.Identity.Legacy))
	for _, l := range cfg.Identity.Legacy {
		legacy = append(legacy, toScheme(l))
	}
	return fingerprint.New(toScheme(cfg.Identity.IdentityScheme), legacy...)
}

// Ready verifica las dependencias externas.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if err := a.Store.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := a.Cache.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	return errors.Join(errs...)
}

// Close libera recursos en orden inverso.
func (a *App) Close() error {
	var msgs []string
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	a.closers = nil
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
