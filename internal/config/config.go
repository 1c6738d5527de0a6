package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	OTPProviderLocal   = "local"
	OTPProviderOTPless = "otpless"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string
	CookieSecure  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	OTPProvider         string
	OTPlessAppID        string
	OTPlessClientID     string
	OTPlessClientSecret string
	OTPlessBaseURL      string
	OTPTTL              time.Duration
	OTPMaxAttempts      int

	SMSLocalAPIKey  string
	SMSLocalBaseURL string
	SMSLocalSender  string

	CountryCode     string
	PhoneDigits     int
	OTPDigits       int
	DesktopMinWidth int
	VerifyWait      time.Duration

	RateLimitRPM         int
	SendRateLimitPerHour int

	KafkaBrokers []string
	KafkaTopic   string

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	cfg := Config{
		Environment:          env,
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "social-hour-waitlist"),
		SessionSecret:        strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionTTL:           getDuration("SESSION_TTL", 30*time.Minute),
		SessionStore:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
		CookieSecure:         getBool("COOKIE_SECURE", env != "development"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		OTPProvider:          strings.ToLower(getEnv("OTP_PROVIDER", OTPProviderLocal)),
		OTPlessAppID:         getEnv("OTPLESS_APP_ID", "F0XJ4Q40P0192Y9EIYXI"),
		OTPlessClientID:      os.Getenv("OTPLESS_CLIENT_ID"),
		OTPlessClientSecret:  os.Getenv("OTPLESS_CLIENT_SECRET"),
		OTPlessBaseURL:       getEnv("OTPLESS_BASE_URL", "https://auth.otpless.app"),
		OTPTTL:               getDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:       getInt("OTP_MAX_ATTEMPTS", 5),
		SMSLocalAPIKey:       os.Getenv("SMS_LOCAL_API_KEY"),
		SMSLocalBaseURL:      getEnv("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2"),
		SMSLocalSender:       os.Getenv("SMS_LOCAL_SENDER"),
		CountryCode:          getEnv("COUNTRY_CODE", "+91"),
		PhoneDigits:          getInt("PHONE_DIGITS", 10),
		OTPDigits:            getInt("OTP_DIGITS", 6),
		DesktopMinWidth:      getInt("DESKTOP_MIN_WIDTH", 1024),
		VerifyWait:           getDuration("VERIFY_WAIT", 10*time.Second),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 120),
		SendRateLimitPerHour: getInt("SEND_RATE_LIMIT_PER_HOUR", 6),
		KafkaBrokers:         getList("KAFKA_BROKERS", nil),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "social-hour.waitlist"),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("SESSION_SECRET is required when APP_ENV=%s", c.Environment)
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreMemory, SessionStoreRedis)
	}
	switch c.OTPProvider {
	case OTPProviderLocal:
	case OTPProviderOTPless:
		if c.OTPlessClientID == "" || c.OTPlessClientSecret == "" {
			return fmt.Errorf("OTPLESS_CLIENT_ID and OTPLESS_CLIENT_SECRET are required for OTP_PROVIDER=otpless")
		}
	default:
		return fmt.Errorf("OTP_PROVIDER must be %q or %q", OTPProviderLocal, OTPProviderOTPless)
	}
	if !strings.HasPrefix(c.CountryCode, "+") {
		return fmt.Errorf("COUNTRY_CODE must start with '+'")
	}
	if c.PhoneDigits <= 0 || c.OTPDigits <= 0 {
		return fmt.Errorf("PHONE_DIGITS and OTP_DIGITS must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
