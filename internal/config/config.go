package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// UploadConfig controls the upload admission pipeline.
type UploadConfig struct {
	// Enabled gates the whole /upload surface; disabled deployments answer 404.
	Enabled bool
	// RequireAuth demands a valid upload-purpose authorization proof on every upload.
	RequireAuth bool
	// RequirePubkeyInRule additionally demands that the caller's pubkey is listed
	// by the matching acceptance rule.
	RequirePubkeyInRule bool
	// TempDir is where request bodies are staged before commit. Empty means os.TempDir.
	TempDir string
}

// AuthConfig holds proof verification settings.
type AuthConfig struct {
	// Secret is the HMAC key shared with the proof issuer.
	Secret string
}

// WhitelistConfig holds allow-list cache settings.
type WhitelistConfig struct {
	// Enabled gates uploads on allow-list membership of the caller pubkey.
	Enabled bool
	// URL is the remote directory serving {"names":{name:pubkey}} snapshots.
	URL string
	// File is the local last-known-good snapshot cache.
	File string
	// RefreshInterval is the background refresh period.
	RefreshInterval time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Port      string
	RulesFile string
	Database  DatabaseConfig
	MinIO     MinIOConfig
	Upload    UploadConfig
	Auth      AuthConfig
	Whitelist WhitelistConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:   getEnv("APP_HOST", "localhost:8080"),
		Port:      getEnv("PORT", "8080"), // default only for non-sensitive value
		RulesFile: getEnv("RULES_FILE", "rules.yaml"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Upload: UploadConfig{
			Enabled:             getEnvBool("UPLOAD_ENABLED", true),
			RequireAuth:         getEnvBool("UPLOAD_REQUIRE_AUTH", true),
			RequirePubkeyInRule: getEnvBool("UPLOAD_REQUIRE_PUBKEY_IN_RULE", false),
			TempDir:             getEnv("UPLOAD_TEMP_DIR", ""),
		},
		Auth: AuthConfig{
			Secret: getEnv("AUTH_SECRET", ""),
		},
		Whitelist: WhitelistConfig{
			Enabled:         getEnvBool("WHITELIST_ENABLED", false),
			URL:             getEnv("WHITELIST_URL", ""),
			File:            getEnv("WHITELIST_FILE", "data/whitelist.json"),
			RefreshInterval: getEnvDuration("WHITELIST_REFRESH_INTERVAL", time.Hour),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
