package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable read by the server.
const EnvPrefix = "CLASSFILES_"

const defaultEnvFile = ".env"

// loadEnvFile seeds the process environment from a dotenv file. Variables
// already present in the environment win. A missing default .env is fine;
// a missing file named explicitly with -envfile is not.
func loadEnvFile(args []string) {
	path := flagx.EnvFilePath(args)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil {
		return
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return
	}
	panic(err)
}

// parseEnv overlays CLASSFILES_* variables. Malformed numeric, boolean or
// duration values panic, like malformed flags do.
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				panic(envError(name, err))
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				panic(envError(name, err))
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(envError(name, err))
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("RECORD_STORE", &config.RecordStore)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("MONGO_URI", &config.MongoURI)
	str("MONGO_DATABASE", &config.MongoDatabase)
	str("STORAGE_BACKEND", &config.StorageBackend)
	str("LOCAL_ROOT", &config.LocalRoot)
	str("LOCAL_BASE_URL", &config.LocalBaseURL)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_ENDPOINT", &config.S3BaseEndpoint)
	str("S3_ACCESS_KEY", &config.S3AccessKey)
	str("S3_SECRET_KEY", &config.S3SecretKey)
	boolean("S3_PATH_STYLE", &config.S3PathStyle)
	boolean("S3_PUBLIC_READ", &config.S3PublicRead)
	str("S3_PUBLIC_BASE_URL", &config.S3PublicBaseURL)
	duration("SIGNED_URL_TTL", &config.SignedURLTTL)
	duration("STORAGE_TIMEOUT", &config.StorageTimeout)
	integer("STORAGE_MAX_RETRIES", &config.StorageMaxRetries)
	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(envError("MAX_UPLOAD_BYTES", err))
		}
		config.MaxUploadBytes = n
	}
	list("ALLOWED_TYPES", &config.AllowedTypes)
	list("DENIED_EXTENSIONS", &config.DeniedExtensions)
	duration("PROCESSING_TIMEOUT", &config.ProcessingTimeout)
	integer("THUMBNAIL_MAX_SIZE", &config.ThumbnailMaxSize)
	str("JWT_SECRET", &config.JWTSecret)
	list("KAFKA_BROKERS", &config.KafkaBrokers)
	str("KAFKA_TOPIC", &config.KafkaTopic)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envError(name string, err error) error {
	return errors.New(EnvPrefix + name + ": " + err.Error())
}
