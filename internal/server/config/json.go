package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/classfiles/internal/flagx"
	"github.com/dmitrijs2005/classfiles/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON configuration file.
// Only keys present in the file override the current values, so pointer
// fields distinguish "absent" from a zero value.
type JsonConfig struct {
	EndpointAddrHTTP  *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC  *string         `json:"endpoint_addr_grpc"`
	RecordStore       *string         `json:"record_store"`
	DatabaseDSN       *string         `json:"database_dsn"`
	MongoURI          *string         `json:"mongo_uri"`
	MongoDatabase     *string         `json:"mongo_database"`
	StorageBackend    *string         `json:"storage_backend"`
	LocalRoot         *string         `json:"local_root"`
	LocalBaseURL      *string         `json:"local_base_url"`
	S3Bucket          *string         `json:"s3_bucket"`
	S3Region          *string         `json:"s3_region"`
	S3BaseEndpoint    *string         `json:"s3_base_endpoint"`
	S3AccessKey       *string         `json:"s3_access_key"`
	S3SecretKey       *string         `json:"s3_secret_key"`
	S3PathStyle       *bool           `json:"s3_path_style"`
	S3PublicRead      *bool           `json:"s3_public_read"`
	S3PublicBaseURL   *string         `json:"s3_public_base_url"`
	SignedURLTTL      *timex.Duration `json:"signed_url_ttl"`
	StorageTimeout    *timex.Duration `json:"storage_timeout"`
	StorageMaxRetries *int            `json:"storage_max_retries"`
	MaxUploadBytes    *int64          `json:"max_upload_bytes"`
	AllowedTypes      []string        `json:"allowed_types"`
	DeniedExtensions  []string        `json:"denied_extensions"`
	ProcessingTimeout *timex.Duration `json:"processing_timeout"`
	ThumbnailMaxSize  *int            `json:"thumbnail_max_size"`
	JWTSecret         *string         `json:"jwt_secret"`
	KafkaBrokers      []string        `json:"kafka_brokers"`
	KafkaTopic        *string         `json:"kafka_topic"`
}

// parseJson loads configuration values from the file named by -c/-config.
// If no file is given nothing changes. Unreadable or invalid files panic:
// a config file that was asked for but cannot be used is an operator error.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JSONConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.RecordStore, c.RecordStore)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.LocalRoot, c.LocalRoot)
	setString(&config.LocalBaseURL, c.LocalBaseURL)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.KafkaTopic, c.KafkaTopic)

	if c.S3PathStyle != nil {
		config.S3PathStyle = *c.S3PathStyle
	}
	if c.S3PublicRead != nil {
		config.S3PublicRead = *c.S3PublicRead
	}
	if c.SignedURLTTL != nil {
		config.SignedURLTTL = c.SignedURLTTL.Duration
	}
	if c.StorageTimeout != nil {
		config.StorageTimeout = c.StorageTimeout.Duration
	}
	if c.StorageMaxRetries != nil {
		config.StorageMaxRetries = *c.StorageMaxRetries
	}
	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
	if c.AllowedTypes != nil {
		config.AllowedTypes = c.AllowedTypes
	}
	if c.DeniedExtensions != nil {
		config.DeniedExtensions = c.DeniedExtensions
	}
	if c.ProcessingTimeout != nil {
		config.ProcessingTimeout = c.ProcessingTimeout.Duration
	}
	if c.ThumbnailMaxSize != nil {
		config.ThumbnailMaxSize = *c.ThumbnailMaxSize
	}
	if c.KafkaBrokers != nil {
		config.KafkaBrokers = c.KafkaBrokers
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
