package server

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/dmitrijs2005/tooltool/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, mutate func(c *config.Config)) *App {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = "memory://"
	c.DisableNotifications = true
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	if mutate != nil {
		mutate(c)
	}
	app, err := NewApp(c, logging.Nop(), BuildInfo{Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApp_NotificationsDisabled(t *testing.T) {
	app := newTestApp(t, nil)
	assert.Nil(t, app.redis)
	assert.Equal(t, notify.NopPublisher{}, app.publisher)
}

func TestNewApp_NotificationsEnabled(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.DisableNotifications = false })
	require.NotNil(t, app.redis)
	assert.IsType(t, &notify.RedisPublisher{}, app.publisher)
}

func TestApp_OneShotTasksOnEmptyCatalog(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	assert.NoError(t, app.Migrate(ctx))
	assert.NoError(t, app.CheckPendingUploads(ctx))
	assert.NoError(t, app.Replicate(ctx))
}

func TestApp_CDNOnlyWhenConfigured(t *testing.T) {
	app := newTestApp(t, nil)
	cdn, err := app.cdn()
	require.NoError(t, err)
	assert.Nil(t, cdn)

	app = newTestApp(t, func(c *config.Config) {
		c.CloudFrontURL = "cdn.example.com"
		c.CloudFrontKeyID = "K1"
		c.CloudFrontPrivateKeyFile = "/does/not/exist.pem"
	})
	_, err = app.cdn()
	assert.Error(t, err)
}

func TestApp_MintToken(t *testing.T) {
	app := newTestApp(t, nil)
	tok, err := app.MintToken("ci", []string{"project:releng:services/tooltool/api/upload/public"}, time.Minute)
	require.NoError(t, err)

	claims, err := auth.ParseToken(tok, []byte(app.config.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.ClientID)
}

func TestApp_RunServerAndWorkerStopOnCancel(t *testing.T) {
	for name, run := range map[string]func(*App, context.Context) error{
		"server": (*App).RunServer,
		"worker": (*App).RunWorker,
	} {
		t.Run(name, func(t *testing.T) {
			app := newTestApp(t, nil)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(app, ctx) }()

			time.Sleep(100 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(3 * time.Second):
				t.Fatal("did not stop")
			}
		})
	}
}
