package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	PublicURL    string
	// TrustedProxies decides whose X-Forwarded-For is believed when the
	// rate limiter keys requests by client IP.
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketAvatars string
	UseSSL        bool
	Region        string
	MaxAvatarSize int64
}

type SecurityConfig struct {
	SessionSecret        string
	CSRFSecret           string
	SessionTTL           time.Duration
	VerificationTTL      time.Duration
	PasswordResetTTL     time.Duration
	ChangeConfirmTTL     time.Duration
	APIKeyCooldown       time.Duration
	SessionCookieName    string
	CSRFCookieName       string
	CookieDomain         string
	SecureCookies        bool
	RequireVerifiedLogin bool
}

type AdminConfig struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RateLimitPolicy is a sliding window ceiling.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Global RateLimitPolicy
	Auth   RateLimitPolicy
	Resend RateLimitPolicy
	APIKey RateLimitPolicy
}

type MailConfig struct {
	Driver   string
	From     string
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	Stream   string
}

type WorkerConfig struct {
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	LogLevel      string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Admin            AdminConfig
	RateLimit        RateLimitConfig
	Mail             MailConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TRAVELBLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	// Depends on the environment, which is only known once the file is read.
	v.SetDefault("security.securecookies", v.GetString("environment") != "development")

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every missing secret at once so a misconfigured deploy
// fails with one message.
func (c *AppConfig) Validate() error {
	var errs []error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(c.Postgres.DSN, "postgres.dsn")
	require(c.Security.SessionSecret, "security.sessionsecret")
	require(c.Security.CSRFSecret, "security.csrfsecret")
	require(c.Admin.Username, "admin.username")
	require(c.Admin.Email, "admin.email")
	require(c.Admin.Password, "admin.password")

	if len(c.Security.SessionSecret) > 0 && len(c.Security.SessionSecret) < 32 {
		errs = append(errs, errors.New("security.sessionsecret must be at least 32 bytes"))
	}
	if c.Security.SessionSecret != "" && c.Security.SessionSecret == c.Security.CSRFSecret {
		errs = append(errs, errors.New("security.csrfsecret must differ from security.sessionsecret"))
	}

	if c.Mail.Driver == "smtp" {
		require(c.Mail.SMTPHost, "mail.smtphost")
		require(c.Mail.SMTPUser, "mail.smtpuser")
		require(c.Mail.SMTPPass, "mail.smtppass")
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Secrets have empty defaults so AutomaticEnv can bind them during Unmarshal.
	for _, key := range []string{
		"postgres.dsn",
		"redis.password",
		"storage.endpoint",
		"storage.accesskey",
		"storage.secretkey",
		"security.sessionsecret",
		"security.csrfsecret",
		"security.cookiedomain",
		"admin.username",
		"admin.email",
		"admin.password",
		"mail.smtphost",
		"mail.smtpuser",
		"mail.smtppass",
		"allowcorsorigins",
		"http.trustedproxies",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.publicurl", "http://localhost:8080")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrateonstart", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketavatars", "travelblog-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxavatarsize", 2<<20)

	v.SetDefault("security.sessionttl", "12h")
	v.SetDefault("security.verificationttl", "24h")
	v.SetDefault("security.passwordresetttl", "1h")
	v.SetDefault("security.changeconfirmttl", "1h")
	v.SetDefault("security.apikeycooldown", "1h")
	v.SetDefault("security.sessioncookiename", "tb_session")
	v.SetDefault("security.csrfcookiename", "tb_csrf")
	v.SetDefault("security.requireverifiedlogin", true)

	v.SetDefault("admin.firstname", "Site")
	v.SetDefault("admin.lastname", "Admin")

	v.SetDefault("ratelimit.global.limit", 300)
	v.SetDefault("ratelimit.global.window", "15m")
	v.SetDefault("ratelimit.auth.limit", 20)
	v.SetDefault("ratelimit.auth.window", "15m")
	v.SetDefault("ratelimit.resend.limit", 3)
	v.SetDefault("ratelimit.resend.window", "15m")
	v.SetDefault("ratelimit.apikey.limit", 5)
	v.SetDefault("ratelimit.apikey.window", "15m")

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.from", "no-reply@travelblog.local")
	v.SetDefault("mail.smtpport", 587)
	v.SetDefault("mail.stream", "mail:outbound")

	v.SetDefault("worker.group", "mail-workers")
	v.SetDefault("worker.consumer", "")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.loglevel", "info")
}
