// Package config handles configuration for the server component:
// defaults, a JSON overlay, an optional .env file, process environment,
// and command-line flags, applied in that order and validated once.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the classfiles server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses for the REST API and the gRPC health endpoint.
//   - RecordStore: "sqlite", "postgres" or "mongo"; DatabaseDSN is used by the SQL stores, MongoURI/MongoDatabase by mongo.
//   - StorageBackend: "local", "s3" or empty for auto-detection from the S3 settings.
//   - LocalRoot / LocalBaseURL: filesystem root of the local adapter and the URL prefix it serves under.
//   - S3*: object storage settings for the cloud adapter.
//   - MaxUploadBytes / AllowedTypes / DeniedExtensions: upload policy.
//   - ProcessingTimeout / ThumbnailMaxSize: file processor limits.
//   - JWTSecret: when set, teacher identity must come from a verified HS256 bearer token.
//   - KafkaBrokers / KafkaTopic: upload event publishing; disabled when no brokers are given.
type Config struct {
	EndpointAddrHTTP string
	EndpointAddrGRPC string

	RecordStore   string
	DatabaseDSN   string
	MongoURI      string
	MongoDatabase string

	StorageBackend string
	LocalRoot      string
	LocalBaseURL   string

	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
	S3AccessKey       string
	S3SecretKey       string
	S3PathStyle       bool
	S3PublicRead      bool
	S3PublicBaseURL   string
	SignedURLTTL      time.Duration
	StorageTimeout    time.Duration
	StorageMaxRetries int

	MaxUploadBytes   int64
	AllowedTypes     []string
	DeniedExtensions []string

	ProcessingTimeout time.Duration
	ThumbnailMaxSize  int

	JWTSecret string

	KafkaBrokers []string
	KafkaTopic   string
}

// Backend names.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Record store names.
const (
	RecordStoreSQLite   = "sqlite"
	RecordStorePostgres = "postgres"
	RecordStoreMongo    = "mongo"
)

// DefaultAllowedTypes mirrors what teachers actually attach to lessons.
var DefaultAllowedTypes = []string{
	"image/*",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"text/plain",
	"text/markdown",
	"text/csv",
}

// DefaultDeniedExtensions are refused whatever MIME type the client declares.
var DefaultDeniedExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".scr", ".msi", ".dll",
	".js", ".vbs", ".ps1", ".sh", ".jar", ".app",
}

// LoadDefaults populates Config with development defaults:
// local storage under ./uploads and an SQLite record store.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.RecordStore = RecordStoreSQLite
	c.DatabaseDSN = "classfiles.db"
	c.MongoDatabase = "classfiles"
	c.StorageBackend = ""
	c.LocalRoot = "./uploads"
	c.LocalBaseURL = "/api/files"
	c.S3Region = "us-east-1"
	c.SignedURLTTL = time.Hour
	c.StorageTimeout = 30 * time.Second
	c.StorageMaxRetries = 3
	c.MaxUploadBytes = 50 << 20
	c.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	c.DeniedExtensions = append([]string(nil), DefaultDeniedExtensions...)
	c.ProcessingTimeout = 30 * time.Second
	c.ThumbnailMaxSize = 200
	c.KafkaTopic = "classfiles.uploads"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment (optionally seeded from a
// .env file) and finally command-line flags. It panics on unreadable
// config files or malformed flags; call Validate before use.
func LoadConfig() *Config {
	args := os.Args[1:]
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	loadEnvFile(args)
	parseEnv(cfg, os.LookupEnv)
	parseFlags(cfg, args)
	return cfg
}
