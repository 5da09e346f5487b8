package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config for environment parsing. It is pre-filled from
// the current Config, so unset variables keep the value from earlier
// layers. TTLs are milliseconds.
type envConfig struct {
	HTTPAddr          string        `env:"AUTHKEEPER_HTTP_ADDR"`
	GRPCAddr          string        `env:"AUTHKEEPER_GRPC_ADDR"`
	DatabaseDSN       string        `env:"AUTHKEEPER_DATABASE_DSN"`
	Storage           string        `env:"AUTHKEEPER_STORAGE"`
	RedisAddr         string        `env:"AUTHKEEPER_REDIS_ADDR"`
	RedisPassword     string        `env:"AUTHKEEPER_REDIS_PASSWORD"`
	RedisDB           int           `env:"AUTHKEEPER_REDIS_DB"`
	SecretKey         string        `env:"AUTHKEEPER_JWT_SECRET"`
	AccessTokenTTLMs  int64         `env:"AUTHKEEPER_JWT_EXPIRATION_MS"`
	RefreshTokenTTLMs int64         `env:"AUTHKEEPER_JWT_REFRESH_EXPIRATION_MS"`
	BcryptCost        int           `env:"AUTHKEEPER_BCRYPT_COST"`
	HashConcurrency   int           `env:"AUTHKEEPER_HASH_CONCURRENCY"`
	SweepInterval     time.Duration `env:"AUTHKEEPER_SWEEP_INTERVAL"`
	ShutdownTimeout   time.Duration `env:"AUTHKEEPER_SHUTDOWN_TIMEOUT"`
	LogLevel          string        `env:"AUTHKEEPER_LOG_LEVEL"`
	OTLPEndpoint      string        `env:"AUTHKEEPER_OTLP_ENDPOINT"`
	S3RootUser        string        `env:"AUTHKEEPER_S3_ROOT_USER"`
	S3RootPassword    string        `env:"AUTHKEEPER_S3_ROOT_PASSWORD"`
	S3Bucket          string        `env:"AUTHKEEPER_S3_BUCKET"`
	S3Region          string        `env:"AUTHKEEPER_S3_REGION"`
	S3BaseEndpoint    string        `env:"AUTHKEEPER_S3_BASE_ENDPOINT"`
	AdminUsername     string        `env:"AUTHKEEPER_ADMIN_USERNAME"`
	AdminEmail        string        `env:"AUTHKEEPER_ADMIN_EMAIL"`
	AdminPassword     string        `env:"AUTHKEEPER_ADMIN_PASSWORD"`
}

func parseEnv(config *Config) error {
	raw := envConfig{
		HTTPAddr:          config.HTTPAddr,
		GRPCAddr:          config.GRPCAddr,
		DatabaseDSN:       config.DatabaseDSN,
		Storage:           config.Storage,
		RedisAddr:         config.RedisAddr,
		RedisPassword:     config.RedisPassword,
		RedisDB:           config.RedisDB,
		SecretKey:         config.SecretKey,
		AccessTokenTTLMs:  config.AccessTokenTTL.Milliseconds(),
		RefreshTokenTTLMs: config.RefreshTokenTTL.Milliseconds(),
		BcryptCost:        config.BcryptCost,
		HashConcurrency:   config.HashConcurrency,
		SweepInterval:     config.SweepInterval,
		ShutdownTimeout:   config.ShutdownTimeout,
		LogLevel:          config.LogLevel,
		OTLPEndpoint:      config.OTLPEndpoint,
		S3RootUser:        config.S3RootUser,
		S3RootPassword:    config.S3RootPassword,
		S3Bucket:          config.S3Bucket,
		S3Region:          config.S3Region,
		S3BaseEndpoint:    config.S3BaseEndpoint,
		AdminUsername:     config.AdminUsername,
		AdminEmail:        config.AdminEmail,
		AdminPassword:     config.AdminPassword,
	}

	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	config.HTTPAddr = raw.HTTPAddr
	config.GRPCAddr = raw.GRPCAddr
	config.DatabaseDSN = raw.DatabaseDSN
	config.Storage = raw.Storage
	config.RedisAddr = raw.RedisAddr
	config.RedisPassword = raw.RedisPassword
	config.RedisDB = raw.RedisDB
	config.SecretKey = raw.SecretKey
	config.AccessTokenTTL = time.Duration(raw.AccessTokenTTLMs) * time.Millisecond
	config.RefreshTokenTTL = time.Duration(raw.RefreshTokenTTLMs) * time.Millisecond
	config.BcryptCost = raw.BcryptCost
	config.HashConcurrency = raw.HashConcurrency
	config.SweepInterval = raw.SweepInterval
	config.ShutdownTimeout = raw.ShutdownTimeout
	config.LogLevel = raw.LogLevel
	config.OTLPEndpoint = raw.OTLPEndpoint
	config.S3RootUser = raw.S3RootUser
	config.S3RootPassword = raw.S3RootPassword
	config.S3Bucket = raw.S3Bucket
	config.S3Region = raw.S3Region
	config.S3BaseEndpoint = raw.S3BaseEndpoint
	config.AdminUsername = raw.AdminUsername
	config.AdminEmail = raw.AdminEmail
	config.AdminPassword = raw.AdminPassword

	return nil
}
