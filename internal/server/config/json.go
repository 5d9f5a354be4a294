package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "60s" and integer nanoseconds.
//
// Pointer fields distinguish "absent" from "zero"; only present fields
// overwrite the defaults.
type JsonConfig struct {
	EndpointAddrHTTP             *string           `json:"endpoint_addr_http"`
	EndpointAddrGRPC             *string           `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string           `json:"database_dsn"`
	SecretKey                    *string           `json:"secret_key"`
	UploadExpiresIn              *timex.Duration   `json:"upload_expires_in"`
	DownloadExpiresIn            *timex.Duration   `json:"download_expires_in"`
	AllowAnonymousPublicDownload *bool             `json:"allow_anonymous_public_download"`
	Regions                      map[string]string `json:"s3_regions"`
	S3AccessKeyID                *string           `json:"s3_access_key_id"`
	S3SecretAccessKey            *string           `json:"s3_secret_access_key"`
	S3BaseEndpoint               *string           `json:"s3_base_endpoint"`
	CloudFrontURL                *string           `json:"cloudfront_url"`
	CloudFrontKeyID              *string           `json:"cloudfront_key_id"`
	CloudFrontPrivateKeyFile     *string           `json:"cloudfront_private_key_file"`
	DisableNotifications         *bool             `json:"disable_notifications"`
	RedisAddr                    *string           `json:"redis_addr"`
	RedisPassword                *string           `json:"redis_password"`
	RedisDB                      *int              `json:"redis_db"`
	NotificationExchange         *string           `json:"notification_exchange"`
	ConsumerGroup                *string           `json:"consumer_group"`
	ConsumerName                 *string           `json:"consumer_name"`
	ClaimIdle                    *timex.Duration   `json:"claim_idle"`
	VerifyInterval               *timex.Duration   `json:"verify_interval"`
	ReplicateInterval            *timex.Duration   `json:"replicate_interval"`
	LogLevel                     *string           `json:"log_level"`
}

// parseJson loads configuration values from the JSON file at path into config.
// An empty path loads nothing.
func parseJson(path string, config *Config) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.UploadExpiresIn, c.UploadExpiresIn)
	setDuration(&config.DownloadExpiresIn, c.DownloadExpiresIn)
	setBool(&config.AllowAnonymousPublicDownload, c.AllowAnonymousPublicDownload)
	if c.Regions != nil {
		config.Regions = c.Regions
	}
	setString(&config.S3AccessKeyID, c.S3AccessKeyID)
	setString(&config.S3SecretAccessKey, c.S3SecretAccessKey)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.CloudFrontURL, c.CloudFrontURL)
	setString(&config.CloudFrontKeyID, c.CloudFrontKeyID)
	setString(&config.CloudFrontPrivateKeyFile, c.CloudFrontPrivateKeyFile)
	setBool(&config.DisableNotifications, c.DisableNotifications)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.NotificationExchange, c.NotificationExchange)
	setString(&config.ConsumerGroup, c.ConsumerGroup)
	setString(&config.ConsumerName, c.ConsumerName)
	setDuration(&config.ClaimIdle, c.ClaimIdle)
	setDuration(&config.VerifyInterval, c.VerifyInterval)
	setDuration(&config.ReplicateInterval, c.ReplicateInterval)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
