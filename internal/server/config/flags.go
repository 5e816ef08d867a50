package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/flagx"
)

var serverFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-x", "-k", "-l",
	"-u", "-p", "-b", "-region", "-e",
}

// parseFlags populates Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-x int      referral code validity, days
//	-k int      bcrypt cost
//	-l string   log level
//	-u, -p      S3 credentials
//	-b string   S3 bucket for retired codes
//	-region     S3 region
//	-e string   S3 base endpoint (e.g. "http://127.0.0.1:9000/")
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	codeValidity := fs.Int("x", int(config.ReferralCodeValidity.Hours()/24), "referral code validity (in days)")

	fs.IntVar(&config.BcryptCost, "k", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for retired codes")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Whole-unit flags only override what was explicitly passed, so a
	// "36h" from JSON or env is not truncated to a day.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessValidity) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshValidity) * time.Minute
		case "x":
			config.ReferralCodeValidity = time.Duration(*codeValidity) * 24 * time.Hour
		}
	})
}
