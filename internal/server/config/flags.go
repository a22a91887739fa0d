package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   HMAC secret key
//	-t int      download URL validity, minutes
//	-k int      chunk URL validity, minutes
//	-w int      session validity, hours
//	-q int      default quota, megabytes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and converted to
//     time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-k", "-w", "-q", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	downloadTTL := fs.Int("t", int(config.DownloadURLTTL.Minutes()), "download url validity (in minutes)")
	chunkTTL := fs.Int("k", int(config.ChunkURLTTL.Minutes()), "chunk url validity (in minutes)")
	sessionTTL := fs.Int("w", int(config.SessionTTL.Hours()), "upload session validity (in hours)")
	quotaMB := fs.Int64("q", config.DefaultQuotaBytes/(1024*1024), "default user quota (in megabytes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DownloadURLTTL = time.Duration(*downloadTTL) * time.Minute
	config.ChunkURLTTL = time.Duration(*chunkTTL) * time.Minute
	config.SessionTTL = time.Duration(*sessionTTL) * time.Hour
	config.DefaultQuotaBytes = *quotaMB * 1024 * 1024
}
