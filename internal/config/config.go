package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es inmutable una vez cargada; los componentes reciben structs de
// opciones derivados de acá, nunca leen env por su cuenta.
type Config struct {
	App struct {
		Env  string `yaml:"env"` // dev|prod|test
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres|memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory|redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		// AppTTL es cuánto vive una App cacheada. Las credenciales nunca se cachean.
		AppTTL string `yaml:"app_ttl"`
	} `yaml:"cache"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Identity struct {
		IdentityScheme `yaml:",inline"`
		Legacy         []IdentityScheme `yaml:"legacy"`
		// DefaultRegion se usa para teléfonos sin prefijo internacional (ISO alpha-2).
		DefaultRegion string `yaml:"default_region"`
	} `yaml:"identity"`

	OTP struct {
		OtpCountLimit    int    `yaml:"otp_count_limit"`
		FailAttemptLimit int    `yaml:"fail_attempt_limit"`
		ResendDelay      string `yaml:"resend_delay"`
		SessionLifetime  string `yaml:"session_lifetime"`
		CodeLength       int    `yaml:"code_length"`
		Pepper           string `yaml:"pepper"`
		MessageTemplate  string `yaml:"message_template"`
		// SandboxEchoCode devuelve el código en la respuesta (solo dev; se fuerza false en prod).
		SandboxEchoCode bool `yaml:"sandbox_echo_code"`
		Argon2          struct {
			Memory      uint32 `yaml:"memory_kib"`
			Time        uint32 `yaml:"time"`
			Parallelism uint8  `yaml:"parallelism"`
		} `yaml:"argon2"`
		Throttle struct {
			Enabled bool   `yaml:"enabled"`
			Limit   int    `yaml:"limit"`
			Window  string `yaml:"window"`
		} `yaml:"throttle"`
	} `yaml:"otp"`

	Exchange struct {
		// Key: 32 bytes en base64 o hex.
		Key      string `yaml:"key"`
		Lifetime string `yaml:"lifetime"`
	} `yaml:"exchange"`

	WebLogin struct {
		SigningSecret string `yaml:"signing_secret"`
		ServerSalt    string `yaml:"server_salt"`
		Lifetime      string `yaml:"lifetime"`
	} `yaml:"web_login"`

	SMS struct {
		Provider string `yaml:"provider"` // log|http|mail
		HTTP     struct {
			URL        string `yaml:"url"`
			APIKey     string `yaml:"api_key"`
			Sender     string `yaml:"sender"`
			Timeout    string `yaml:"timeout"`
			RetryCount int    `yaml:"retry_count"`
		} `yaml:"http"`
		Mail struct {
			Host          string `yaml:"host"`
			Port          int    `yaml:"port"`
			Username      string `yaml:"username"`
			Password      string `yaml:"password"`
			From          string `yaml:"from"`
			GatewayDomain string `yaml:"gateway_domain"`
			TLS           string `yaml:"tls"` // auto|starttls|ssl|none
		} `yaml:"mail"`
	} `yaml:"sms"`
}

// IdentityScheme es una versión del fingerprint.
type IdentityScheme struct {
	Version int    `yaml:"version"`
	Secret  string `yaml:"secret"`
	Salt1   string `yaml:"salt1"`
	Salt2   string `yaml:"salt2"`
	Repeat  int    `yaml:"repeat"`
}

// Load lee el YAML (si path no está vacío), aplica defaults, env y valida.
func Load(path string) (*Config, error) {
	var b []byte
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return Parse(b)
}

// Parse es Load sin tocar el filesystem.
func Parse(b []byte) (*Config, error) {
	var c Config
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	c.applyDefaults()
	c.applyEnvOverrides()

	if strings.EqualFold(c.App.Env, "prod") {
		c.OTP.SandboxEchoCode = false
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "phonepass"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 20
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.AppTTL == "" {
		c.Cache.AppTTL = "1m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "phonepass:"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Identity.Version == 0 {
		c.Identity.Version = 1
	}
	if c.Identity.Repeat == 0 {
		c.Identity.Repeat = 32
	}
	if c.OTP.OtpCountLimit == 0 {
		c.OTP.OtpCountLimit = 3
	}
	if c.OTP.FailAttemptLimit == 0 {
		c.OTP.FailAttemptLimit = 5
	}
	if c.OTP.ResendDelay == "" {
		c.OTP.ResendDelay = "60s"
	}
	if c.OTP.SessionLifetime == "" {
		c.OTP.SessionLifetime = "300s"
	}
	if c.OTP.CodeLength == 0 {
		c.OTP.CodeLength = 6
	}
	if c.OTP.MessageTemplate == "" {
		c.OTP.MessageTemplate = "Your verification code is {{code}}"
	}
	if c.OTP.Argon2.Memory == 0 {
		c.OTP.Argon2.Memory = 19 * 1024
	}
	if c.OTP.Argon2.Time == 0 {
		c.OTP.Argon2.Time = 2
	}
	if c.OTP.Argon2.Parallelism == 0 {
		c.OTP.Argon2.Parallelism = 1
	}
	if c.OTP.Throttle.Limit == 0 {
		c.OTP.Throttle.Limit = 10
	}
	if c.OTP.Throttle.Window == "" {
		c.OTP.Throttle.Window = "1h"
	}
	if c.Exchange.Lifetime == "" {
		c.Exchange.Lifetime = "5m"
	}
	if c.WebLogin.Lifetime == "" {
		c.WebLogin.Lifetime = "10m"
	}
	if c.SMS.Provider == "" {
		c.SMS.Provider = "log"
	}
	if c.SMS.HTTP.Timeout == "" {
		c.SMS.HTTP.Timeout = "5s"
	}
	if c.SMS.Mail.Port == 0 {
		c.SMS.Mail.Port = 587
	}
	if c.SMS.Mail.TLS == "" {
		c.SMS.Mail.TLS = "auto"
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (string, bool) {
	if s, ok := getEnvStr(key); ok {
		if _, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
// Los secretos normalmente llegan solo por env.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvDur("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_APP_TTL"); ok {
		c.Cache.AppTTL = v
	}

	// IDENTITY
	if v, ok := getEnvInt("IDENTITY_VERSION"); ok {
		c.Identity.Version = v
	}
	if v, ok := getEnvStr("IDENTITY_SECRET"); ok {
		c.Identity.Secret = v
	}
	if v, ok := getEnvStr("IDENTITY_SALT1"); ok {
		c.Identity.Salt1 = v
	}
	if v, ok := getEnvStr("IDENTITY_SALT2"); ok {
		c.Identity.Salt2 = v
	}
	if v, ok := getEnvInt("IDENTITY_REPEAT"); ok {
		c.Identity.Repeat = v
	}
	if v, ok := getEnvStr("IDENTITY_DEFAULT_REGION"); ok {
		c.Identity.DefaultRegion = strings.ToUpper(v)
	}

	// OTP
	if v, ok := getEnvInt("OTP_COUNT_LIMIT"); ok {
		c.OTP.OtpCountLimit = v
	}
	if v, ok := getEnvInt("OTP_FAIL_ATTEMPT_LIMIT"); ok {
		c.OTP.FailAttemptLimit = v
	}
	if v, ok := getEnvDur("OTP_RESEND_DELAY"); ok {
		c.OTP.ResendDelay = v
	}
	if v, ok := getEnvDur("OTP_SESSION_LIFETIME"); ok {
		c.OTP.SessionLifetime = v
	}
	if v, ok := getEnvInt("OTP_CODE_LENGTH"); ok {
		c.OTP.CodeLength = v
	}
	if v, ok := getEnvStr("OTP_PEPPER"); ok {
		c.OTP.Pepper = v
	}
	if v, ok := getEnvBool("OTP_SANDBOX_ECHO_CODE"); ok {
		c.OTP.SandboxEchoCode = v
	}
	if v, ok := getEnvBool("OTP_THROTTLE_ENABLED"); ok {
		c.OTP.Throttle.Enabled = v
	}
	if v, ok := getEnvInt("OTP_THROTTLE_LIMIT"); ok {
		c.OTP.Throttle.Limit = v
	}
	if v, ok := getEnvDur("OTP_THROTTLE_WINDOW"); ok {
		c.OTP.Throttle.Window = v
	}

	// EXCHANGE
	if v, ok := getEnvStr("EXCHANGE_KEY"); ok {
		c.Exchange.Key = v
	}
	if v, ok := getEnvDur("EXCHANGE_LIFETIME"); ok {
		c.Exchange.Lifetime = v
	}

	// WEB LOGIN
	if v, ok := getEnvStr("WEB_LOGIN_SIGNING_SECRET"); ok {
		c.WebLogin.SigningSecret = v
	}
	if v, ok := getEnvStr("WEB_LOGIN_SERVER_SALT"); ok {
		c.WebLogin.ServerSalt = v
	}
	if v, ok := getEnvDur("WEB_LOGIN_LIFETIME"); ok {
		c.WebLogin.Lifetime = v
	}

	// SMS
	if v, ok := getEnvStr("SMS_PROVIDER"); ok {
		c.SMS.Provider = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SMS_HTTP_URL"); ok {
		c.SMS.HTTP.URL = v
	}
	if v, ok := getEnvStr("SMS_HTTP_API_KEY"); ok {
		c.SMS.HTTP.APIKey = v
	}
	if v, ok := getEnvStr("SMS_HTTP_SENDER"); ok {
		c.SMS.HTTP.Sender = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMS.Mail.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMS.Mail.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMS.Mail.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMS.Mail.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMS.Mail.From = v
	}
	if v, ok := getEnvStr("SMS_MAIL_GATEWAY_DOMAIN"); ok {
		c.SMS.Mail.GatewayDomain = v
	}
}

// Validate rechaza configuraciones con las que el core no puede operar.
func (c *Config) Validate() error {
	var errs []error
	for name, s := range map[string]string{
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"cache.app_ttl":                      c.Cache.AppTTL,
		"otp.resend_delay":                   c.OTP.ResendDelay,
		"otp.session_lifetime":               c.OTP.SessionLifetime,
		"otp.throttle.window":                c.OTP.Throttle.Window,
		"exchange.lifetime":                  c.Exchange.Lifetime,
		"web_login.lifetime":                 c.WebLogin.Lifetime,
		"sms.http.timeout":                   c.SMS.HTTP.Timeout,
	} {
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: duración inválida %q", name, s))
		}
	}

	if c.Identity.Secret == "" {
		errs = append(errs, errors.New("identity.secret requerido (IDENTITY_SECRET)"))
	}
	if c.Identity.Repeat < 0 {
		errs = append(errs, errors.New("identity.repeat no puede ser negativo"))
	}
	seen := map[int]bool{c.Identity.Version: true}
	for _, l := range c.Identity.Legacy {
		if l.Version <= 0 || l.Secret == "" {
			errs = append(errs, fmt.Errorf("identity.legacy: versión %d incompleta", l.Version))
		}
		if seen[l.Version] {
			errs = append(errs, fmt.Errorf("identity.legacy: versión %d duplicada", l.Version))
		}
		seen[l.Version] = true
	}

	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 6 {
		errs = append(errs, fmt.Errorf("otp.code_length debe estar entre 4 y 6 (got %d)", c.OTP.CodeLength))
	}
	if c.OTP.OtpCountLimit <= 0 || c.OTP.FailAttemptLimit <= 0 {
		errs = append(errs, errors.New("otp: los límites deben ser > 0"))
	}
	if c.OTP.Pepper == "" {
		errs = append(errs, errors.New("otp.pepper requerido (OTP_PEPPER)"))
	}
	if c.Exchange.Key == "" {
		errs = append(errs, errors.New("exchange.key requerido (EXCHANGE_KEY)"))
	}
	if c.WebLogin.SigningSecret == "" || c.WebLogin.ServerSalt == "" {
		errs = append(errs, errors.New("web_login.signing_secret y web_login.server_salt requeridos"))
	} else if len(c.WebLogin.SigningSecret) < 32 {
		errs = append(errs, errors.New("web_login.signing_secret debe tener al menos 32 caracteres"))
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn requerido para postgres (STORAGE_DSN)"))
		}
	case "memory":
		if strings.EqualFold(c.App.Env, "prod") {
			errs = append(errs, errors.New("storage.driver=memory no está permitido en prod"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver desconocido %q", c.Storage.Driver))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr requerido con cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind desconocido %q", c.Cache.Kind))
	}
	switch c.SMS.Provider {
	case "log":
	case "http":
		if c.SMS.HTTP.URL == "" {
			errs = append(errs, errors.New("sms.http.url requerido con sms.provider=http"))
		}
	case "mail":
		if c.SMS.Mail.Host == "" || c.SMS.Mail.GatewayDomain == "" {
			errs = append(errs, errors.New("sms.mail.host y sms.mail.gateway_domain requeridos con sms.provider=mail"))
		}
	default:
		errs = append(errs, fmt.Errorf("sms.provider desconocido %q", c.SMS.Provider))
	}
	return errors.Join(errs...)
}

// Dur parsea una duración ya validada por Validate.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
