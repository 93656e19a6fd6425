package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath      string
	OutputDir   string
	RegistryDir string

	PloomesBaseURL       string
	PloomesAPIToken      string
	PloomesTimeoutMs     int
	PloomesMinIntervalMs int
	PloomesMaxIntervalMs int
	PloomesMaxRetries    int

	ParceirosBaseURL     string
	ParceirosTimeoutMs   int
	ParceirosTokenTTLMin int

	FuzzyThreshold    float64
	DefaultProduct    string
	SyncMaxWorkers    int
	SyncDryRun        bool
	SyncValidate      bool
	IntegrationUserID int64

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBName      string
	DBUser      string
	DBPassword  string

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "leadsync.db")),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "output")),
		RegistryDir: getEnv("REGISTRY_DIR", filepath.Join(cwd, "utils")),

		PloomesBaseURL:       getEnv("PLOOMES_BASE_URL", "https://api2.ploomes.com"),
		PloomesAPIToken:      getEnv("PLOOMES_API_TOKEN", ""),
		PloomesTimeoutMs:     getEnvInt("PLOOMES_TIMEOUT_MS", 30000),
		PloomesMinIntervalMs: getEnvInt("PLOOMES_MIN_INTERVAL_MS", 200),
		PloomesMaxIntervalMs: getEnvInt("PLOOMES_MAX_INTERVAL_MS", 5000),
		PloomesMaxRetries:    getEnvInt("PLOOMES_MAX_RETRIES", 3),

		ParceirosBaseURL:     getEnv("PARCEIROS_BASE_URL", "https://uar8quj870.execute-api.us-east-1.amazonaws.com/prod"),
		ParceirosTimeoutMs:   getEnvInt("PARCEIROS_TIMEOUT_MS", 30000),
		ParceirosTokenTTLMin: getEnvInt("PARCEIROS_TOKEN_TTL_MIN", 50),

		FuzzyThreshold:    getEnvFloat("FUZZY_THRESHOLD", 0.93),
		DefaultProduct:    getEnv("DEFAULT_PRODUCT", "Integral"),
		SyncMaxWorkers:    getEnvInt("SYNC_MAX_WORKERS", 5),
		SyncDryRun:        getEnvBool("SYNC_DRY_RUN", false),
		SyncValidate:      getEnvBool("SYNC_VALIDATE_DELETIONS", true),
		IntegrationUserID: int64(getEnvInt("PLOOMES_INTEGRATION_USER_ID", 110026673)),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBName:      getEnv("DB_NAME", ""),
		DBUser:      getEnv("DB_USER", ""),
		DBPassword:  getEnv("DB_PASSWORD", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// PostgresDSN prefers DATABASE_URL and otherwise assembles a key/value DSN
// from the DB_* variables.
func (c Config) PostgresDSN() (string, error) {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return c.DatabaseURL, nil
	}
	parts := map[string]string{
		"DB_HOST":     c.DBHost,
		"DB_PORT":     c.DBPort,
		"DB_NAME":     c.DBName,
		"DB_USER":     c.DBUser,
		"DB_PASSWORD": c.DBPassword,
	}
	var missing []string
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD"} {
		if strings.TrimSpace(parts[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing database env vars: %s", strings.Join(missing, ", "))
	}
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword), nil
}

// PartnerCredentials resolves the Parceiros login for a mesa from the
// environment.
func (c Config) PartnerCredentials(mesa string) (username, password string, err error) {
	prefix, ok := credentialPrefixes[strings.ToLower(strings.TrimSpace(mesa))]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownMesa, mesa)
	}
	userVar, passVar := prefix+"_USERNAME", prefix+"_PASSWORD"
	username = getEnv(userVar, "")
	password = getEnv(passVar, "")
	if err := c.Require(userVar, username); err != nil {
		return "", "", err
	}
	if err := c.Require(passVar, password); err != nil {
		return "", "", err
	}
	return username, password, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
