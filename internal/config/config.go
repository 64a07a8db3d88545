package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = 2222
	defaultHostKeyPath        = ".data/host_ed25519"
	defaultIdleTimeout        = 120 * time.Second
	defaultMaxSessions        = 32
	defaultRateLimitPerMinute = 30
	defaultRateLimitBurst     = 10
	defaultHTTPAddr           = ":8080"
	defaultHTTPMaxSessions    = 1000
	defaultHTTPRatePerMinute  = 120
	defaultHTTPRateBurst      = 20
	defaultHostname           = "portfolio"
	defaultSessionIdle        = 30 * time.Minute
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"
	defaultSMTPPort           = 587
	maximumConfiguredSessions = 1024
)

// Config captures startup settings for the termfolio entrypoint.
type Config struct {
	Host               string
	Port               int
	HostKeyPath        string
	IdleTimeout        time.Duration
	MaxSessions        int
	RateLimitPerMinute int
	RateLimitBurst     int

	HTTPAddr           string
	HTTPMaxSessions    int
	HTTPRatePerMinute  int
	HTTPRateBurst      int
	DBPath             string
	Hostname           string
	SessionIdleTimeout time.Duration

	AdminEmail        string
	AdminPasswordHash string

	LogLevel  string
	LogFormat string

	Contact ContactConfig
}

// ContactConfig selects and configures the contact relay's email provider.
// An empty ResendAPIKey and SMTPHost leaves the relay unconfigured.
type ContactConfig struct {
	ResendAPIKey string
	To           string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
}

// Configured reports whether any email provider is available.
func (c ContactConfig) Configured() bool {
	return c.ResendAPIKey != "" || c.SMTPHost != ""
}

// LoadFromEnv loads runtime configuration from environment variables.
func LoadFromEnv() (Config, error) {
	host, err := readRequiredOrDefault("TERMFOLIO_SSH_HOST", defaultHost)
	if err != nil {
		return Config{}, err
	}

	port, err := readInt("TERMFOLIO_SSH_PORT", defaultPort, 1, 65535)
	if err != nil {
		return Config{}, err
	}

	hostKeyPath, err := readRequiredOrDefault("TERMFOLIO_SSH_HOST_KEY_PATH", defaultHostKeyPath)
	if err != nil {
		return Config{}, err
	}
	cleanHostKeyPath := filepath.Clean(hostKeyPath)
	if cleanHostKeyPath == "." {
		return Config{}, fmt.Errorf("TERMFOLIO_SSH_HOST_KEY_PATH must not resolve to current directory")
	}

	idleTimeout, err := readDuration("TERMFOLIO_SSH_IDLE_TIMEOUT", defaultIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	maxSessions, err := readInt("TERMFOLIO_SSH_MAX_SESSIONS", defaultMaxSessions, 1, maximumConfiguredSessions)
	if err != nil {
		return Config{}, err
	}

	rateLimit, err := readInt("TERMFOLIO_RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute, 1, 10000)
	if err != nil {
		return Config{}, err
	}

	burst, err := readInt("TERMFOLIO_RATE_LIMIT_BURST", defaultRateLimitBurst, 1, 1000)
	if err != nil {
		return Config{}, err
	}

	httpAddr, err := readRequiredOrDefault("TERMFOLIO_HTTP_ADDR", defaultHTTPAddr)
	if err != nil {
		return Config{}, err
	}
	if _, _, err := net.SplitHostPort(httpAddr); err != nil {
		return Config{}, fmt.Errorf("TERMFOLIO_HTTP_ADDR must be host:port: %w", err)
	}

	httpMaxSessions, err := readInt("TERMFOLIO_HTTP_MAX_SESSIONS", defaultHTTPMaxSessions, 1, 100000)
	if err != nil {
		return Config{}, err
	}

	httpRate, err := readInt("TERMFOLIO_HTTP_RATE_LIMIT_PER_MINUTE", defaultHTTPRatePerMinute, 1, 100000)
	if err != nil {
		return Config{}, err
	}

	httpBurst, err := readInt("TERMFOLIO_HTTP_RATE_LIMIT_BURST", defaultHTTPRateBurst, 1, 10000)
	if err != nil {
		return Config{}, err
	}

	hostname, err := readRequiredOrDefault("TERMFOLIO_HOSTNAME", defaultHostname)
	if err != nil {
		return Config{}, err
	}

	sessionIdle, err := readDuration("TERMFOLIO_SESSION_IDLE_TIMEOUT", defaultSessionIdle)
	if err != nil {
		return Config{}, err
	}

	adminEmail := readOptional("TERMFOLIO_ADMIN_EMAIL")
	adminHash := readOptional("TERMFOLIO_ADMIN_PASSWORD_HASH")
	if (adminEmail == "") != (adminHash == "") {
		return Config{}, fmt.Errorf("TERMFOLIO_ADMIN_EMAIL and TERMFOLIO_ADMIN_PASSWORD_HASH must be set together")
	}

	logLevel, err := readChoice("TERMFOLIO_LOG_LEVEL", defaultLogLevel, "debug", "info", "warn", "error")
	if err != nil {
		return Config{}, err
	}

	logFormat, err := readChoice("TERMFOLIO_LOG_FORMAT", defaultLogFormat, "text", "json", "logfmt")
	if err != nil {
		return Config{}, err
	}

	contact, err := loadContact()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Host:               host,
		Port:               port,
		HostKeyPath:        cleanHostKeyPath,
		IdleTimeout:        idleTimeout,
		MaxSessions:        maxSessions,
		RateLimitPerMinute: rateLimit,
		RateLimitBurst:     burst,
		HTTPAddr:           httpAddr,
		HTTPMaxSessions:    httpMaxSessions,
		HTTPRatePerMinute:  httpRate,
		HTTPRateBurst:      httpBurst,
		DBPath:             readOptional("TERMFOLIO_DB_PATH"),
		Hostname:           hostname,
		SessionIdleTimeout: sessionIdle,
		AdminEmail:         adminEmail,
		AdminPasswordHash:  adminHash,
		LogLevel:           logLevel,
		LogFormat:          logFormat,
		Contact:            contact,
	}, nil
}

func loadContact() (ContactConfig, error) {
	smtpPort, err := readInt("TERMFOLIO_SMTP_PORT", defaultSMTPPort, 1, 65535)
	if err != nil {
		return ContactConfig{}, err
	}
	c := ContactConfig{
		ResendAPIKey: readOptional("TERMFOLIO_RESEND_API_KEY"),
		To:           readOptional("TERMFOLIO_CONTACT_TO"),
		From:         readOptional("TERMFOLIO_CONTACT_FROM"),
		SMTPHost:     readOptional("TERMFOLIO_SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUser:     readOptional("TERMFOLIO_SMTP_USER"),
		SMTPPass:     readOptional("TERMFOLIO_SMTP_PASS"),
	}
	if c.Configured() && c.To == "" {
		return ContactConfig{}, fmt.Errorf("TERMFOLIO_CONTACT_TO is required when an email provider is configured")
	}
	return c, nil
}

func readRequiredOrDefault(key, fallback string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}

	return raw, nil
}

func readOptional(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func readChoice(key, fallback string, allowed ...string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %s", key, strings.Join(allowed, ", "))
}

func readInt(key string, fallback, min, max int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}

	return parsed, nil
}

func readDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}
