package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/feed"
	"github.com/nhle/linkfeed/internal/poller"
)

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PollerControl exposes the running poller, when there is one.
type PollerControl interface {
	Status() poller.Status
	Trigger()
}

// Deps are the handler dependencies. Poller may be nil.
type Deps struct {
	Feed     *feed.Service
	Previews feed.Previewer
	Store    Pinger
	Poller   PollerControl
	Logger   *zap.Logger
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	deps Deps
}

// NewRouter builds the chi router for the read path.
func NewRouter(deps Deps) http.Handler {
	h := &Handlers{deps: deps}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/feed", h.ListFeed)
		r.Get("/preview", h.Preview)
		r.Post("/poll", h.TriggerPoll)
	})

	return r
}

// requestLogger logs each request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
