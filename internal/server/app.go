// Package server wires the tooltool components together and runs them:
// the HTTP API, the background worker, and the one-shot maintenance tasks.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/dmitrijs2005/tooltool/internal/server/metrics"
	"github.com/dmitrijs2005/tooltool/internal/server/notify"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/dmitrijs2005/tooltool/internal/server/replicator"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tooltool/internal/server/services"
	"github.com/dmitrijs2005/tooltool/internal/server/storage"
	"github.com/dmitrijs2005/tooltool/internal/server/verifier"
	"github.com/dmitrijs2005/tooltool/internal/server/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/tooltool/internal/server/grpc"
	hs "github.com/dmitrijs2005/tooltool/internal/server/http"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Build   string
}

type App struct {
	config    *config.Config
	build     BuildInfo
	logger    logging.Logger
	repos     repomanager.RepositoryManager
	store     storage.Store
	regions   *regions.Regions
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	redis     *redis.Client
	publisher notify.Publisher
}

func NewApp(c *config.Config, l logging.Logger, b BuildInfo) (*App, error) {
	repos, err := repomanager.New(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	r := regions.New(c.Regions)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{
		config:    c,
		build:     b,
		logger:    l,
		repos:     repos,
		regions:   r,
		registry:  registry,
		metrics:   metrics.New(registry),
		publisher: notify.NopPublisher{},
		store: storage.NewS3Store(r, storage.S3Config{
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
			BaseEndpoint:    c.S3BaseEndpoint,
		}),
	}

	if !c.DisableNotifications {
		app.redis = notify.NewClient(notify.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		app.publisher = notify.NewRedisPublisher(app.redis, c.NotificationExchange)
	}

	return app, nil
}

// Close releases the database and Redis connections.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	errs = append(errs, app.repos.Close())
	return errors.Join(errs...)
}

// WithSignals returns a context canceled on SIGINT, SIGTERM or SIGQUIT.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
}

func (app *App) deps() services.Deps {
	return services.Deps{
		Repos:   app.repos,
		Store:   app.store,
		Regions: app.regions,
		Log:     app.logger,
		Metrics: app.metrics,
	}
}

func (app *App) cdn() (services.URLSigner, error) {
	if app.config.CloudFrontURL == "" {
		return nil, nil
	}
	signer, err := storage.LoadCDNSigner(app.config.CloudFrontURL, app.config.CloudFrontKeyID, app.config.CloudFrontPrivateKeyFile)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func (app *App) handler() (*hs.Handler, error) {
	cdn, err := app.cdn()
	if err != nil {
		return nil, err
	}
	deps := app.deps()
	checks := map[string]hs.Pinger{"database": app.repos}
	if app.redis != nil {
		checks["notifications"] = app.publisher
	}
	return hs.NewHandler(hs.Options{
		Uploads:   services.NewUploadService(deps, app.publisher, app.config),
		Files:     services.NewFileService(deps),
		Downloads: services.NewDownloadService(deps, cdn, app.config),
		SecretKey: app.config.SecretKey,
		Checks:    checks,
		Version: hs.Version{
			Source:  "https://github.com/dmitrijs2005/tooltool",
			Version: app.build.Version,
			Commit:  app.build.Commit,
			Build:   app.build.Build,
		},
		Metrics:  app.metrics,
		Gatherer: app.registry,
		Logger:   app.logger,
	}), nil
}

// RunServer migrates the catalog and serves the HTTP API until ctx is canceled.
func (app *App) RunServer(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx); err != nil {
		return err
	}
	h, err := app.handler()
	if err != nil {
		return err
	}
	return hs.NewServer(app.config.EndpointAddrHTTP, h.Routes(), app.logger).Run(ctx)
}

func (app *App) verifier() *verifier.Verifier {
	return verifier.New(app.repos, app.store, app.regions, app.logger, app.metrics)
}

func (app *App) replicator() *replicator.Replicator {
	return replicator.New(app.repos, app.store, app.regions, nil, app.logger, app.metrics)
}

// RunWorker runs verification and replication with the gRPC health
// endpoint until ctx is canceled.
func (app *App) RunWorker(ctx context.Context) error {
	app.logger.Info(ctx, "Starting worker...")

	var consumer notify.Consumer
	if app.redis != nil {
		consumer = notify.NewRedisConsumer(app.redis, notify.ConsumerOptions{
			Stream:   app.config.NotificationStream(common.RouteCheckFilePendingUploads),
			Group:    app.config.ConsumerGroup,
			Consumer: app.config.ConsumerName,
			MinIdle:  app.config.ClaimIdle,
		}, app.logger)
	}
	w := worker.New(app.verifier(), app.replicator(), consumer, worker.Options{
		VerifyInterval:    app.config.VerifyInterval,
		ReplicateInterval: app.config.ReplicateInterval,
	}, app.logger)
	health := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return health.Run(ctx) })
	g.Go(func() error {
		health.SetServing(true)
		defer health.SetServing(false)
		return w.Run(ctx)
	})
	return g.Wait()
}

// CheckPendingUploads checks every outstanding grant once.
func (app *App) CheckPendingUploads(ctx context.Context) error {
	return app.verifier().CheckAll(ctx)
}

// Replicate runs one replication pass.
func (app *App) Replicate(ctx context.Context) error {
	return app.replicator().Run(ctx)
}

// Migrate applies the catalog migrations.
func (app *App) Migrate(ctx context.Context) error {
	return app.repos.RunMigrations(ctx)
}

// MintToken issues a bearer token for clientID holding scopes.
func (app *App) MintToken(clientID string, scopes []string, validity time.Duration) (string, error) {
	return auth.GenerateToken(clientID, scopes, []byte(app.config.SecretKey), validity)
}
