package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/metrics"
	"github.com/dmitrijs2005/tooltool/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type UploadAPI interface {
	UploadBatch(ctx context.Context, caller auth.Caller, req *services.UploadRequest, region string) (*services.UploadResult, error)
	MarkUploadComplete(ctx context.Context, digest string) error
	SearchBatches(ctx context.Context, q string) ([]services.BatchView, error)
	GetBatch(ctx context.Context, id int64) (*services.BatchView, error)
}

type FileAPI interface {
	SearchFiles(ctx context.Context, q string) ([]services.FileView, error)
	GetFile(ctx context.Context, digest string) (*services.FileView, error)
	PatchFile(ctx context.Context, caller auth.Caller, digest string, ops []services.PatchOp) (*services.FileView, error)
}

type DownloadAPI interface {
	DownloadFile(ctx context.Context, caller auth.Caller, digest string, region string) (string, error)
}

// Pinger is a dependency pinged by the heartbeat endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Version is served on /__version__.
type Version struct {
	Source  string `json:"source"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Build   string `json:"build"`
}

type Options struct {
	Uploads   UploadAPI
	Files     FileAPI
	Downloads DownloadAPI
	SecretKey string
	Checks    map[string]Pinger
	Version   Version
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    logging.Logger
}

type Handler struct {
	uploads   UploadAPI
	files     FileAPI
	downloads DownloadAPI
	secret    []byte
	checks    map[string]Pinger
	version   Version
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	logger    logging.Logger
}

func NewHandler(o Options) *Handler {
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return &Handler{
		uploads:   o.Uploads,
		files:     o.Files,
		downloads: o.Downloads,
		secret:    []byte(o.SecretKey),
		checks:    o.Checks,
		version:   o.Version,
		metrics:   o.Metrics,
		gatherer:  o.Gatherer,
		logger:    o.Logger.With("module", "http"),
	}
}

// Routes returns the router serving the API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/__lbheartbeat__", h.lbHeartbeat)
	r.Get("/__heartbeat__", h.heartbeat)
	r.Get("/__version__", h.getVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/__permissions__", h.getPermissions)

		r.Get("/upload", h.searchBatches)
		r.Post("/upload", h.uploadBatch)
		r.Get("/upload/{id}", h.getBatch)
		r.Get("/upload/complete/sha512/{digest}", h.uploadComplete)

		r.Get("/file", h.searchFiles)
		r.Get("/file/sha512/{digest}", h.getFile)
		r.Patch("/file/sha512/{digest}", h.patchFile)

		r.Get("/sha512/{digest}", h.downloadFile)
	})

	return r
}

func (h *Handler) lbHeartbeat(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn(ctx, "heartbeat check failed", "check", name, "error", err)
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.version)
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	body := permissionsJSON{
		Description: "Permissions of a logged in user",
		Permissions: []string{},
	}
	if !caller.Anonymous {
		id := caller.ID
		body.UserID = &id
		body.Permissions = append(body.Permissions, caller.Scopes...)
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, body)
}
