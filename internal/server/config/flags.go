package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/syncdrive/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   HMAC secret key for access tokens
//	-w int      durable-store call timeout, seconds
//	-k string   storage backend, "local" or "s3"
//	-l string   local blob directory (local backend)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-q string   SQS queue URL for change events
//	-m int      rate limit, requests per second (0 disables)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-w", "-k", "-l", "-u", "-p", "-b", "-g", "-e", "-q", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	dbTimeout := fs.Int("w", int(config.DBTimeout.Seconds()), "db timeout (in seconds)")

	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend (local|s3)")
	fs.StringVar(&config.LocalStorageDir, "l", config.LocalStorageDir, "local blob directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.EventsQueueURL, "q", config.EventsQueueURL, "events queue URL")
	fs.IntVar(&config.RateLimitRPS, "m", config.RateLimitRPS, "rate limit (requests per second)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DBTimeout = time.Duration(*dbTimeout) * time.Second
}
