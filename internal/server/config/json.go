package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/flagx"
	"github.com/dmitrijs2005/filedrop/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr string `json:"endpoint_addr"`
	DatabaseDSN  string `json:"database_dsn"`
	SecretKey    string `json:"secret_key"`

	UploadURLTTL   timex.Duration `json:"upload_url_ttl"`
	DownloadURLTTL timex.Duration `json:"download_url_ttl"`
	PreviewURLTTL  timex.Duration `json:"preview_url_ttl"`
	ChunkURLTTL    timex.Duration `json:"chunk_url_ttl"`

	SessionTTL             timex.Duration `json:"session_ttl"`
	SessionCleanupInterval timex.Duration `json:"session_cleanup_interval"`

	DefaultChunkSize  int64 `json:"default_chunk_size"`
	DefaultQuotaBytes int64 `json:"default_quota_bytes"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.UploadURLTTL = time.Duration(c.UploadURLTTL.Duration)
	config.DownloadURLTTL = time.Duration(c.DownloadURLTTL.Duration)
	config.PreviewURLTTL = time.Duration(c.PreviewURLTTL.Duration)
	config.ChunkURLTTL = time.Duration(c.ChunkURLTTL.Duration)
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.SessionCleanupInterval = time.Duration(c.SessionCleanupInterval.Duration)
	config.DefaultChunkSize = c.DefaultChunkSize
	config.DefaultQuotaBytes = c.DefaultQuotaBytes
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
