package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	JWTSecret          string
	JWTTTL             time.Duration
	GoogleClientID     string
	GoogleIssuer       string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	StoragePath        string
	StorageBaseURL     string
	GeoIPDBPath        string
	AllowedOrigins     []string
	CheckoutBaseURL    string
	CheckoutAPIKey     string
	SignupCreditGrant  int
	JobPollInterval    time.Duration
	GenerationDeadline time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTTTL:             time.Hour * time.Duration(getEnvInt("JWT_TTL_HOURS", 24)),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleIssuer:       getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "veo-2.0-generate-001"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     "",
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CheckoutBaseURL:    os.Getenv("CHECKOUT_BASE_URL"),
		CheckoutAPIKey:     os.Getenv("CHECKOUT_API_KEY"),
		SignupCreditGrant:  getEnvInt("SIGNUP_CREDIT_GRANT", 2),
		JobPollInterval:    time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 2)),
		GenerationDeadline: time.Minute * time.Duration(getEnvInt("GENERATION_DEADLINE_MINUTES", 10)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", cfg.Port))

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.SignupCreditGrant < 0 {
		return nil, fmt.Errorf("SIGNUP_CREDIT_GRANT must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
