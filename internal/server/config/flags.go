package config

import (
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/flagx"
	"github.com/spf13/pflag"
)

// Flag names.
const (
	FlagConfig                       = "config"
	FlagHTTPAddr                     = "http-addr"
	FlagGRPCAddr                     = "grpc-addr"
	FlagDatabaseDSN                  = "database-dsn"
	FlagSecretKey                    = "secret-key"
	FlagUploadExpiresIn              = "upload-expires-in"
	FlagDownloadExpiresIn            = "download-expires-in"
	FlagAllowAnonymousPublicDownload = "allow-anonymous-public-download"
	FlagRegions                      = "s3-regions"
	FlagS3AccessKeyID                = "s3-access-key-id"
	FlagS3SecretAccessKey            = "s3-secret-access-key"
	FlagS3BaseEndpoint               = "s3-base-endpoint"
	FlagCloudFrontURL                = "cloudfront-url"
	FlagCloudFrontKeyID              = "cloudfront-key-id"
	FlagCloudFrontPrivateKeyFile     = "cloudfront-private-key-file"
	FlagDisableNotifications         = "disable-notifications"
	FlagRedisAddr                    = "redis-addr"
	FlagRedisPassword                = "redis-password"
	FlagRedisDB                      = "redis-db"
	FlagNotificationExchange         = "notification-exchange"
	FlagConsumerGroup                = "consumer-group"
	FlagConsumerName                 = "consumer-name"
	FlagClaimIdle                    = "claim-idle"
	FlagVerifyInterval               = "verify-interval"
	FlagReplicateInterval            = "replicate-interval"
	FlagLogLevel                     = "log-level"
)

// RegisterFlags declares every configuration flag on fs with the defaults
// from LoadDefaults as their default values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := &Config{}
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "path to a JSON config file")
	fs.String(FlagHTTPAddr, d.EndpointAddrHTTP, "address and port to serve the HTTP API")
	fs.String(FlagGRPCAddr, d.EndpointAddrGRPC, "address and port to serve gRPC health checks")
	fs.StringP(FlagDatabaseDSN, "d", d.DatabaseDSN, "database DSN (postgres://... or memory://)")
	fs.StringP(FlagSecretKey, "s", d.SecretKey, "JWT secret key")
	fs.Duration(FlagUploadExpiresIn, d.UploadExpiresIn, "lifetime of signed upload URLs")
	fs.Duration(FlagDownloadExpiresIn, d.DownloadExpiresIn, "lifetime of signed download URLs")
	fs.Bool(FlagAllowAnonymousPublicDownload, d.AllowAnonymousPublicDownload, "allow downloading public files without a scope")
	fs.Var(flagx.NewMapValue(&d.Regions), FlagRegions, "storage regions as region:bucket;region:bucket")
	fs.String(FlagS3AccessKeyID, d.S3AccessKeyID, "S3 access key id")
	fs.String(FlagS3SecretAccessKey, d.S3SecretAccessKey, "S3 secret access key")
	fs.String(FlagS3BaseEndpoint, d.S3BaseEndpoint, "S3 base endpoint for S3-compatible servers")
	fs.String(FlagCloudFrontURL, d.CloudFrontURL, "CloudFront domain serving downloads")
	fs.String(FlagCloudFrontKeyID, d.CloudFrontKeyID, "CloudFront key pair id")
	fs.String(FlagCloudFrontPrivateKeyFile, d.CloudFrontPrivateKeyFile, "CloudFront PEM private key file")
	fs.Bool(FlagDisableNotifications, d.DisableNotifications, "do not publish upload-complete notifications")
	fs.String(FlagRedisAddr, d.RedisAddr, "redis address for notifications")
	fs.String(FlagRedisPassword, d.RedisPassword, "redis password")
	fs.Int(FlagRedisDB, d.RedisDB, "redis database")
	fs.String(FlagNotificationExchange, d.NotificationExchange, "notification exchange name")
	fs.String(FlagConsumerGroup, d.ConsumerGroup, "notification consumer group")
	fs.String(FlagConsumerName, d.ConsumerName, "stable name of this worker in the consumer group")
	fs.Duration(FlagClaimIdle, d.ClaimIdle, "take over notifications pending this long on another worker")
	fs.Duration(FlagVerifyInterval, d.VerifyInterval, "period of the pending upload sweep")
	fs.Duration(FlagReplicateInterval, d.ReplicateInterval, "period of the replication sweep")
	fs.String(FlagLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
}

// parseFlags copies every flag explicitly set on fs into config. Flags left
// at their defaults do not override values loaded from JSON.
func parseFlags(fs *pflag.FlagSet, config *Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = applyFlag(fs, f, config)
	})
	return err
}

func applyFlag(fs *pflag.FlagSet, f *pflag.Flag, c *Config) error {
	var err error
	switch f.Name {
	case FlagHTTPAddr:
		c.EndpointAddrHTTP, err = fs.GetString(f.Name)
	case FlagGRPCAddr:
		c.EndpointAddrGRPC, err = fs.GetString(f.Name)
	case FlagDatabaseDSN:
		c.DatabaseDSN, err = fs.GetString(f.Name)
	case FlagSecretKey:
		c.SecretKey, err = fs.GetString(f.Name)
	case FlagUploadExpiresIn:
		c.UploadExpiresIn, err = fs.GetDuration(f.Name)
	case FlagDownloadExpiresIn:
		c.DownloadExpiresIn, err = fs.GetDuration(f.Name)
	case FlagAllowAnonymousPublicDownload:
		c.AllowAnonymousPublicDownload, err = fs.GetBool(f.Name)
	case FlagRegions:
		c.Regions, err = flagx.ParseMap(f.Value.String())
	case FlagS3AccessKeyID:
		c.S3AccessKeyID, err = fs.GetString(f.Name)
	case FlagS3SecretAccessKey:
		c.S3SecretAccessKey, err = fs.GetString(f.Name)
	case FlagS3BaseEndpoint:
		c.S3BaseEndpoint, err = fs.GetString(f.Name)
	case FlagCloudFrontURL:
		c.CloudFrontURL, err = fs.GetString(f.Name)
	case FlagCloudFrontKeyID:
		c.CloudFrontKeyID, err = fs.GetString(f.Name)
	case FlagCloudFrontPrivateKeyFile:
		c.CloudFrontPrivateKeyFile, err = fs.GetString(f.Name)
	case FlagDisableNotifications:
		c.DisableNotifications, err = fs.GetBool(f.Name)
	case FlagRedisAddr:
		c.RedisAddr, err = fs.GetString(f.Name)
	case FlagRedisPassword:
		c.RedisPassword, err = fs.GetString(f.Name)
	case FlagRedisDB:
		c.RedisDB, err = fs.GetInt(f.Name)
	case FlagNotificationExchange:
		c.NotificationExchange, err = fs.GetString(f.Name)
	case FlagConsumerGroup:
		c.ConsumerGroup, err = fs.GetString(f.Name)
	case FlagConsumerName:
		c.ConsumerName, err = fs.GetString(f.Name)
	case FlagClaimIdle:
		c.ClaimIdle, err = fs.GetDuration(f.Name)
	case FlagVerifyInterval:
		c.VerifyInterval, err = fs.GetDuration(f.Name)
	case FlagReplicateInterval:
		c.ReplicateInterval, err = fs.GetDuration(f.Name)
	case FlagLogLevel:
		c.LogLevel, err = fs.GetString(f.Name)
	}
	if err != nil {
		return fmt.Errorf("flag --%s: %w", f.Name, err)
	}
	return nil
}
