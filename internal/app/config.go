package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	PublicHost  string
	RateLimit   float64
	RedisURL    string
	OTLPEnabled bool

	ZamundaBaseURL             string
	ZamundaUserAgent           string
	ZamundaMaxResults          int
	ZamundaDownloadConcurrency int
	ZamundaDownloadAttempts    int
	ZamundaPrimaryCategories   []int
	ZamundaBroadCategories     []int
	SearchTimeout              time.Duration

	OMDBBaseURL   string
	OMDBTimeout   time.Duration
	TitleCacheTTL time.Duration

	CacheTTL      time.Duration
	CacheSweep    time.Duration
	CacheDisabled bool

	// Credentials for the resolve command. The server takes them from the
	// install URL instead.
	OMDBAPIKey      string
	ZamundaUsername string
	ZamundaPassword string
}

// LoadConfig reads the process environment. Variables from a .env file in
// the working directory (or ENV_FILE) fill in anything not already set.
func LoadConfig() (Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}
	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":7000"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),
		PublicHost:  getEnv("PUBLIC_HOST", ""),
		RateLimit:   float64(getEnvInt("RATE_LIMIT_RPS", 20)),
		RedisURL:    getEnv("REDIS_URL", ""),
		OTLPEnabled: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "") != "",

		ZamundaBaseURL:             getEnv("ZAMUNDA_BASE_URL", "https://zamunda.net"),
		ZamundaUserAgent:           getEnv("ZAMUNDA_USER_AGENT", "stremio-zamunda/1.0"),
		ZamundaMaxResults:          getEnvInt("ZAMUNDA_MAX_RESULTS", 20),
		ZamundaDownloadConcurrency: getEnvInt("ZAMUNDA_DOWNLOAD_CONCURRENCY", 4),
		ZamundaDownloadAttempts:    getEnvInt("ZAMUNDA_DOWNLOAD_ATTEMPTS", 2),
		ZamundaPrimaryCategories:   getEnvIntList("ZAMUNDA_PRIMARY_CATEGORIES"),
		ZamundaBroadCategories:     getEnvIntList("ZAMUNDA_BROAD_CATEGORIES"),
		SearchTimeout:              time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 30)) * time.Second,

		OMDBBaseURL:   getEnv("OMDB_BASE_URL", "https://www.omdbapi.com"),
		OMDBTimeout:   time.Duration(getEnvInt("OMDB_TIMEOUT_SECONDS", 10)) * time.Second,
		TitleCacheTTL: time.Duration(getEnvInt("TITLE_CACHE_TTL_HOURS", 168)) * time.Hour,

		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_MINUTES", 60)) * time.Minute,
		CacheSweep:    time.Duration(getEnvInt("CACHE_SWEEP_MINUTES", 5)) * time.Minute,
		CacheDisabled: getEnvBool("CACHE_DISABLED", false),

		OMDBAPIKey:      getEnv("OMDB_API_KEY", ""),
		ZamundaUsername: getEnv("ZAMUNDA_USERNAME", ""),
		ZamundaPassword: os.Getenv("ZAMUNDA_PASSWORD"),
	}, nil
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvIntList parses a comma separated list of positive integers and
// skips anything else. An unset variable yields nil.
func getEnvIntList(key string) []int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	values := make([]int, 0, 8)
	for _, part := range strings.Split(raw, ",") {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || parsed <= 0 {
			continue
		}
		values = append(values, parsed)
	}
	return values
}
