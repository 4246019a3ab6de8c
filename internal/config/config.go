// Package config loads the server configuration from the environment.
package config

import (
	"compliancedash/internal/blob"
	"compliancedash/internal/core"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr        string
	Storage         core.StorageConfig
	Blob            blob.Config
	MaxFileBytes    int64
	MaxUploadBytes  int64
	Participants    []string
	StaticDir       string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// RemoveOrphanBlobs deletes unreferenced attachment blobs at startup.
	RemoveOrphanBlobs bool
}

// Load reads every setting, applying defaults for unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: ":5000",
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(os.Getenv("COMPLIANCE_STORAGE_DRIVER")),
			JSONPath:    getEnv("COMPLIANCE_JSON_PATH", "compliance_data.json"),
			SQLitePath:  getEnv("COMPLIANCE_SQLITE_PATH", "compliance.db"),
			PostgresDSN: firstEnv("COMPLIANCE_POSTGRES_DSN", "DATABASE_URL", "POSTGRESQL_URL"),
		},
		Blob: blob.Config{
			Driver: blob.Driver(os.Getenv("COMPLIANCE_BLOB_DRIVER")),
			FSRoot: getEnv("COMPLIANCE_BLOB_FS_ROOT", "uploads"),
			S3: blob.S3Config{
				Bucket:          os.Getenv("COMPLIANCE_BLOB_S3_BUCKET"),
				Region:          os.Getenv("COMPLIANCE_BLOB_S3_REGION"),
				Endpoint:        os.Getenv("COMPLIANCE_BLOB_S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			},
		},
		MaxFileBytes:    core.DefaultMaxFileBytes,
		MaxUploadBytes:  50 << 20,
		Participants:    getEnvAsList("COMPLIANCE_CHAT_PARTICIPANTS", core.DefaultParticipants),
		StaticDir:       os.Getenv("COMPLIANCE_STATIC_DIR"),
		ShutdownTimeout: 10 * time.Second,
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	cfg.HTTPAddr = getEnv("COMPLIANCE_HTTP_ADDR", cfg.HTTPAddr)

	var err error
	cfg.Blob.S3.PathStyle, err = getEnvAsBool("COMPLIANCE_BLOB_S3_PATH_STYLE", false)
	if err != nil {
		return nil, err
	}

	cfg.RemoveOrphanBlobs, err = getEnvAsBool("COMPLIANCE_REMOVE_ORPHAN_BLOBS", true)
	if err != nil {
		return nil, err
	}

	cfg.MaxFileBytes, err = getEnvAsInt64("COMPLIANCE_MAX_FILE_BYTES", cfg.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	if cfg.MaxFileBytes <= 0 {
		return nil, fmt.Errorf("invalid value for COMPLIANCE_MAX_FILE_BYTES: must be positive")
	}

	cfg.MaxUploadBytes, err = getEnvAsInt64("COMPLIANCE_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid value for COMPLIANCE_MAX_UPLOAD_BYTES: must be positive")
	}

	cfg.ShutdownTimeout, err = getEnvAsDuration("COMPLIANCE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel, err = getEnvAsLevel("COMPLIANCE_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: expected a boolean, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected a duration, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsLevel(key string, defaultValue slog.Level) (slog.Level, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected a log level, got '%s'", key, valueStr)
	}

	return level, nil
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
