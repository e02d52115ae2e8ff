package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Webhook  WebhookConfig
	Voice    VoiceConfig
	Branding BrandingConfig
	Dialer   DialerConfig
	Download DownloadConfig
	Artifact ArtifactConfig
	Auth     AuthConfig
	DB       DBConfig
	Redis    RedisConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type WebhookConfig struct {
	// BaseURL is the public URL the call-control provider posts webhooks to.
	BaseURL string
}

type VoiceConfig struct {
	APIBase        string
	ApplicationID  string
	PrivateKeyPath string
	FromNumber     string
	RingingTimer   int
	HTTPTimeout    time.Duration
}

type BrandingConfig struct {
	AuthURL   string
	PushURL   string
	APIKey    string
	APISecret string

	// PropagationDelay is how long to wait after a successful push before
	// placing the call, so branding can propagate provider-side.
	PropagationDelay time.Duration

	HTTPTimeout time.Duration
}

type DialerConfig struct {
	MaxRetries        int
	RetryInitialDelay time.Duration

	// Campaign pacing between sequential outbound calls.
	InterCallMin time.Duration
	InterCallMax time.Duration

	// ConcurrencyLimit caps in-flight calls per origin number when Redis is
	// configured.
	ConcurrencyLimit int
}

type DownloadConfig struct {
	Workers           int
	Dir               string
	MaxRetries        int
	RetryInitialDelay time.Duration
	SweepRetries      int
	HTTPTimeout       time.Duration
}

type ArtifactConfig struct {
	Dir string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// DBConfig is optional; the completed-call archive is enabled only when Host
// is set.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig is optional; the campaign concurrency cap falls back to an
// in-process limiter when Host is empty.
type RedisConfig struct {
	Host string
	Port int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Webhook.BaseURL = strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL"))

	c.Voice.APIBase = envDefault("VOICE_API_BASE", "https://api.nexmo.com")
	c.Voice.ApplicationID = strings.TrimSpace(os.Getenv("VOICE_APPLICATION_ID"))
	c.Voice.PrivateKeyPath = strings.TrimSpace(os.Getenv("VOICE_PRIVATE_KEY_PATH"))
	c.Voice.FromNumber = strings.TrimSpace(os.Getenv("VOICE_FROM_NUMBER"))
	c.Voice.RingingTimer = intDefault("VOICE_RINGING_TIMER", 60)
	c.Voice.HTTPTimeout = durationDefault("VOICE_HTTP_TIMEOUT", 10*time.Second)

	c.Branding.AuthURL = envDefault("BRANDING_AUTH_URL", "https://api.firstorion.com/v1/auth")
	c.Branding.PushURL = envDefault("BRANDING_PUSH_URL", "https://api.firstorion.com/exchange/v1/calls/push")
	c.Branding.APIKey = strings.TrimSpace(os.Getenv("BRANDING_API_KEY"))
	c.Branding.APISecret = os.Getenv("BRANDING_API_SECRET")
	c.Branding.PropagationDelay = durationDefault("BRANDING_PROPAGATION_DELAY", 300*time.Millisecond)
	c.Branding.HTTPTimeout = durationDefault("BRANDING_HTTP_TIMEOUT", 10*time.Second)

	c.Dialer.MaxRetries = intDefault("CALL_MAX_RETRIES", 5)
	c.Dialer.RetryInitialDelay = durationDefault("CALL_RETRY_INITIAL_DELAY", time.Second)
	c.Dialer.InterCallMin = durationDefault("CALL_PACING_MIN", 70*time.Second)
	c.Dialer.InterCallMax = durationDefault("CALL_PACING_MAX", 90*time.Second)
	c.Dialer.ConcurrencyLimit = intDefault("CALL_CONCURRENCY_LIMIT", 1)

	c.Download.Workers = intDefault("DOWNLOAD_WORKERS", 2)
	c.Download.Dir = envDefault("DOWNLOAD_DIR", "recordings")
	c.Download.MaxRetries = intDefault("DOWNLOAD_MAX_RETRIES", 5)
	c.Download.RetryInitialDelay = durationDefault("DOWNLOAD_RETRY_INITIAL_DELAY", time.Second)
	c.Download.SweepRetries = intDefault("DOWNLOAD_SWEEP_RETRIES", 2)
	c.Download.HTTPTimeout = durationDefault("DOWNLOAD_HTTP_TIMEOUT", 30*time.Second)

	c.Artifact.Dir = envDefault("ARTIFACT_DIR", "call_logs")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = durationDefault("JWT_ACCESS_TTL", 15*time.Minute)
	c.Auth.RefreshTokenTTL = durationDefault("JWT_REFRESH_TTL", 24*time.Hour)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = intDefault("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = envDefault("DB_SSLMODE", "disable")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = intDefault("REDIS_PORT", 6379)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Webhook.BaseURL == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required"))
	} else if u, err := url.Parse(c.Webhook.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("WEBHOOK_BASE_URL must be an absolute URL, got %q", c.Webhook.BaseURL))
	}

	if c.Voice.ApplicationID == "" {
		errs = append(errs, errors.New("VOICE_APPLICATION_ID is required"))
	}
	if c.Voice.PrivateKeyPath == "" {
		errs = append(errs, errors.New("VOICE_PRIVATE_KEY_PATH is required"))
	}
	if c.Voice.FromNumber == "" {
		errs = append(errs, errors.New("VOICE_FROM_NUMBER is required"))
	}

	// Branding credentials may be absent; calls then proceed unbranded.
	if c.IsProduction() && (c.Branding.APIKey == "" || c.Branding.APISecret == "") {
		errs = append(errs, errors.New("BRANDING_API_KEY and BRANDING_API_SECRET are required in production"))
	}

	if c.Dialer.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("CALL_MAX_RETRIES must be > 0, got %d", c.Dialer.MaxRetries))
	}
	if c.Dialer.InterCallMax < c.Dialer.InterCallMin {
		errs = append(errs, errors.New("CALL_PACING_MAX must be >= CALL_PACING_MIN"))
	}
	if c.Download.Workers <= 0 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_WORKERS must be > 0, got %d", c.Download.Workers))
	}

	if c.Auth.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}

	if c.ArchiveEnabled() {
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// ArchiveEnabled reports whether the optional completed-call archive should
// be wired.
func (c Config) ArchiveEnabled() bool {
	return c.DB.Host != ""
}

// RedisEnabled reports whether the Redis-backed concurrency cap should be
// wired.
func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// WebhookURL joins the public base URL with an endpoint path.
func (c Config) WebhookURL(endpoint string) string {
	base := strings.TrimSuffix(c.Webhook.BaseURL, "/")
	return base + "/webhooks/" + strings.TrimPrefix(endpoint, "/")
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func intDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
