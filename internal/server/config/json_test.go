package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_OverlaysPresentFields(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"endpoint_addr_http":              "127.0.0.1:9000",
		"database_dsn":                    "memory://",
		"upload_expires_in":               "2m",
		"download_expires_in":             30000000000,
		"allow_anonymous_public_download": false,
		"s3_regions":                      map[string]string{"eu-west-1": "b-eu", "us-west-2": "b-us"},
		"disable_notifications":           true,
		"redis_db":                        3,
		"verify_interval":                 "1m",
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJson(path, cfg))

	assert.Equal(t, "127.0.0.1:9000", cfg.EndpointAddrHTTP)
	assert.Equal(t, "memory://", cfg.DatabaseDSN)
	assert.Equal(t, 2*time.Minute, cfg.UploadExpiresIn)
	assert.Equal(t, 30*time.Second, cfg.DownloadExpiresIn)
	assert.False(t, cfg.AllowAnonymousPublicDownload)
	assert.Equal(t, map[string]string{"eu-west-1": "b-eu", "us-west-2": "b-us"}, cfg.Regions)
	assert.True(t, cfg.DisableNotifications)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, time.Minute, cfg.VerifyInterval)

	// untouched fields keep their defaults
	assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
	assert.Equal(t, 15*time.Minute, cfg.ReplicateInterval)
}

func Test_parseJson_EmptyPathIsNoop(t *testing.T) {
	cfg := &Config{EndpointAddrHTTP: "keep"}
	require.NoError(t, parseJson("", cfg))
	assert.Equal(t, "keep", cfg.EndpointAddrHTTP)
}

func Test_parseJson_Errors(t *testing.T) {
	cfg := &Config{}

	err := parseJson(filepath.Join(t.TempDir(), "missing.json"), cfg)
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	err = parseJson(bad, cfg)
	assert.ErrorContains(t, err, "parse config file")
}
