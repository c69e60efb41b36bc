package config

import (
	"flag"

	"github.com/dmitrijs2005/classfiles/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-r string   record store: sqlite | postgres | mongo
//	-d string   database DSN (sqlite path or PostgreSQL DSN)
//	-m string   MongoDB URI
//	-b string   storage backend: local | s3 (empty = auto)
//	-l string   local storage root directory
//	-s string   JWT HMAC secret for teacher identity tokens
//	-t int      processing timeout, seconds
//
// Only these flags are looked at; -c/-config and -envfile are consumed
// earlier by the JSON and dotenv loaders.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-r", "-d", "-m", "-b", "-l", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to serve HTTP on")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to serve gRPC health on")
	fs.StringVar(&config.RecordStore, "r", config.RecordStore, "record store (sqlite, postgres, mongo)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MongoURI, "m", config.MongoURI, "MongoDB URI")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (local, s3)")
	fs.StringVar(&config.LocalRoot, "l", config.LocalRoot, "local storage root")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")

	processingTimeout := fs.Int("t", int(config.ProcessingTimeout.Seconds()), "processing timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ProcessingTimeout = secondsToDuration(*processingTimeout)
}
