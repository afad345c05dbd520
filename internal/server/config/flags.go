package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-h", "-d", "-m", "-s", "-x", "-l", "-w", "-f", "-t", "-u", "-p", "-b", "-g", "-e", "-r"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-h string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-m string   storage backend: postgres | memory
//	-s string   JWT HMAC secret key
//	-x string   mode: development | production
//	-l string   log level: debug | info | warn | error
//	-w string   public base URL used in certificate links
//	-f string   fonts directory
//	-t int      shutdown timeout, seconds
//	-r string   comma-separated template hosts allowed for http(s) image paths
//	-u, -p, -b, -g, -e   S3 user, password, bucket, region, endpoint
//
// Unknown arguments are filtered out first, so -c/-config can coexist.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "h", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Storage, "m", config.Storage, "storage backend (postgres|memory)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.Mode, "x", config.Mode, "mode (development|production)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.PublicBaseURL, "w", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.FontsDir, "f", config.FontsDir, "fonts directory")

	fs.Func("r", "comma-separated template hosts", func(v string) error {
		config.TemplateHosts = splitList(v)
		return nil
	})

	shutdownTimeout := fs.Int("t", int(config.ShutdownTimeout.Seconds()), "shutdown timeout (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ShutdownTimeout = time.Duration(*shutdownTimeout) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
