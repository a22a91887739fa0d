package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config values from environment variables, loading an
// optional .env file first. Unset variables leave the current value alone.
func parseEnv(config *Config) {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	setString(&config.EndpointAddr, "ENDPOINT_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "SECRET_KEY")

	setDuration(&config.UploadURLTTL, "UPLOAD_URL_TTL")
	setDuration(&config.DownloadURLTTL, "DOWNLOAD_URL_TTL")
	setDuration(&config.PreviewURLTTL, "PREVIEW_URL_TTL")
	setDuration(&config.ChunkURLTTL, "CHUNK_URL_TTL")
	setDuration(&config.SessionTTL, "SESSION_TTL")
	setDuration(&config.SessionCleanupInterval, "SESSION_CLEANUP_INTERVAL")

	setInt64(&config.DefaultChunkSize, "DEFAULT_CHUNK_SIZE")
	setInt64(&config.DefaultQuotaBytes, "DEFAULT_QUOTA_BYTES")

	setString(&config.S3RootUser, "S3_ROOT_USER")
	setString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "S3_REGION")
	setString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
