package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// authenticate resolves the bearer token into a Caller. Requests without
// a token proceed as the anonymous caller.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), auth.AnonymousCaller)))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(r.Context(), h.logger, w, common.ErrInvalidToken)
			return
		}
		claims, err := auth.ParseToken(token, h.secret)
		if err != nil {
			writeError(r.Context(), h.logger, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), auth.CallerFromClaims(claims))))
	})
}

const requestIDHeader = "X-Request-Id"

// instrument logs each request and records it in metrics under its route
// pattern. A request without an X-Request-Id is given one.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		h.metrics.Request(r.Method, route, status, elapsed)
		h.logger.Debug(r.Context(), "request", "request_id", id, "method", r.Method, "route", route, "status", status, "elapsed", elapsed)
	})
}
