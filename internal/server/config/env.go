package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile is loaded, when present, before the process environment is read.
// Variables already set in the environment win over the file.
var envFile = ".env"

// parseEnv overlays values from environment variables:
//
//	HTTP_ADDR, GRPC_ADDR, DATABASE_DSN, SECRET_KEY,
//	ACCESS_TOKEN_VALIDITY, REFRESH_TOKEN_VALIDITY, REFERRAL_CODE_VALIDITY (Go durations),
//	BCRYPT_COST, LOG_LEVEL,
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT
//
// Malformed durations or numbers panic.
func parseEnv(config *Config) {
	_ = godotenv.Load(envFile)

	envString(&config.HTTPAddr, "HTTP_ADDR")
	envString(&config.GRPCAddr, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_VALIDITY")
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_VALIDITY")
	envDuration(&config.ReferralCodeValidity, "REFERRAL_CODE_VALIDITY")

	if v, ok := os.LookupEnv("BCRYPT_COST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.BcryptCost = n
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
