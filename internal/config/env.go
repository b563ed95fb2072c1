package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type envConfig struct {
	APP_PORT      string
	LOG_FILE_PATH string
	LOG_LEVEL     string

	// LOCAL_STORE selects the task store: postgres or memory.
	LOCAL_STORE string

	DB_HOST              string
	DB_PORT              int
	DB_USER              string
	DB_PASSWORD          string
	DB_NAME              string
	DB_SSL_MODE          string
	DB_MAX_OPEN_CONNS    int
	DB_MAX_IDLE_CONNS    int
	DB_CONN_MAX_LIFETIME time.Duration

	GCP_PROJECT_ID string

	ELASTIC_URL          string
	ELASTIC_INDEX_PREFIX string

	GOOGLE_CLIENT_ID     string
	GOOGLE_CLIENT_SECRET string

	SYNC_POLICY_FILE string
}

// DefaultEnvConfig holds the process configuration after LoadEnvConfig.
var DefaultEnvConfig envConfig

// LoadEnvConfig reads an optional .env file and then the process environment.
func LoadEnvConfig(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := envConfig{
		APP_PORT:             getString("APP_PORT", "8080"),
		LOG_FILE_PATH:        getString("LOG_FILE_PATH", ""),
		LOG_LEVEL:            getString("LOG_LEVEL", "info"),
		LOCAL_STORE:          getString("LOCAL_STORE", "postgres"),
		DB_HOST:              getString("DB_HOST", "localhost"),
		DB_USER:              getString("DB_USER", "postgres"),
		DB_PASSWORD:          getString("DB_PASSWORD", ""),
		DB_NAME:              getString("DB_NAME", "tasks"),
		DB_SSL_MODE:          getString("DB_SSL_MODE", "disable"),
		GCP_PROJECT_ID:       getString("GCP_PROJECT_ID", ""),
		ELASTIC_URL:          getString("ELASTIC_URL", ""),
		ELASTIC_INDEX_PREFIX: getString("ELASTIC_INDEX_PREFIX", "task-reconciler"),
		GOOGLE_CLIENT_ID:     getString("GOOGLE_CLIENT_ID", ""),
		GOOGLE_CLIENT_SECRET: getString("GOOGLE_CLIENT_SECRET", ""),
		SYNC_POLICY_FILE:     getString("SYNC_POLICY_FILE", "sync_policy.yaml"),
	}

	var err error
	if cfg.DB_PORT, err = getInt("DB_PORT", 5432); err != nil {
		return err
	}
	if cfg.DB_MAX_OPEN_CONNS, err = getInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return err
	}
	if cfg.DB_MAX_IDLE_CONNS, err = getInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return err
	}
	if cfg.DB_CONN_MAX_LIFETIME, err = getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return err
	}
	if cfg.LOCAL_STORE != "postgres" && cfg.LOCAL_STORE != "memory" {
		return fmt.Errorf("LOCAL_STORE must be postgres or memory, got %q", cfg.LOCAL_STORE)
	}

	DefaultEnvConfig = cfg
	return nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
