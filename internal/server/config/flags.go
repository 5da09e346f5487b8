package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-storage    postgres | memory | redis
//	-redis      Redis address
//	-s string   base64 HMAC secret
//	-t int      access token TTL, milliseconds
//	-r int      refresh token TTL, milliseconds
//	-cost int   bcrypt cost
//	-l string   log level
//
// Unknown flags in args are dropped by flagx.FilterArgs so the JSON
// -c/-config flag and flags of other components do not collide.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("authkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Storage, "storage", config.Storage, "storage backend: postgres, memory or redis")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "base64 signing secret")
	fs.IntVar(&config.BcryptCost, "cost", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.OTLPEndpoint, "otlp", config.OTLPEndpoint, "OTLP/HTTP trace endpoint")

	accessTTL := fs.Int64("t", config.AccessTokenTTL.Milliseconds(), "access token TTL (ms)")
	refreshTTL := fs.Int64("r", config.RefreshTokenTTL.Milliseconds(), "refresh token TTL (ms)")

	if err := fs.Parse(flagx.FilterArgs(args, flagx.Names(fs))); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.AccessTokenTTL = time.Duration(*accessTTL) * time.Millisecond
	config.RefreshTokenTTL = time.Duration(*refreshTTL) * time.Millisecond
	return nil
}
