// Package collector implements the tracker-facing HTTP service. Every
// tracking route assembles a CollectorPayload from the request, frames it
// for the raw lane and responds before the enricher ever sees the event.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datenstrom/datenstrom/internal/cache"
	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/metrics"
	"github.com/datenstrom/datenstrom/internal/sinks"
)

const (
	remoteConfigCacheSize = 2048

	shutdownTimeout = 10 * time.Second
)

// Server is the collector HTTP service.
type Server struct {
	cfg    *config.Config
	sink   sinks.Sink
	remote *cache.Client
	clk    clock.Clock
}

func New(cfg *config.Config, sink sinks.Sink, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	return &Server{
		cfg:    cfg,
		sink:   sink,
		remote: cache.NewClient(remoteConfigCacheSize, cfg.CacheTTL(), cfg.CacheNoneTTL(), clk),
		clk:    clk,
	}
}

// Handler is the full HTTP surface: the CORS layer sits outside the router
// so preflights succeed even on method-restricted routes.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.Router())
}

// Router builds the route table. The canonical Snowplow paths come first;
// extra vendor prefixes from the configuration get the same three routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/com.snowplowanalytics.snowplow/tp2", s.handleTrack).Methods(http.MethodPost)
	r.HandleFunc("/i", s.handlePixel).Methods(http.MethodGet)
	r.HandleFunc("/event", s.handleTrack).Methods(http.MethodPost)
	if s.cfg.EnableRedirectTracking {
		r.HandleFunc("/r", s.handleRedirect).Methods(http.MethodGet)
		r.HandleFunc("/r/tp2", s.handleRedirect).Methods(http.MethodGet)
	}

	for _, vendor := range s.cfg.AddVendorPaths {
		r.HandleFunc("/"+vendor+"/tp2", s.handleTrack).Methods(http.MethodPost)
		r.HandleFunc("/"+vendor+"/i", s.handlePixel).Methods(http.MethodGet)
		if s.cfg.EnableRedirectTracking {
			r.HandleFunc("/"+vendor+"/r", s.handleRedirect).Methods(http.MethodGet)
		}
	}

	r.HandleFunc("/{vendor}/v1", s.handlePixel).Methods(http.MethodGet)
	r.HandleFunc("/{vendor}/v1", s.handleTrack).Methods(http.MethodPost)
	r.HandleFunc("/{vendor}/tp2", s.handleTrack).Methods(http.MethodPost)

	return r
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.CollectorPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("collector listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("collector stopped")
		return nil
	}
}

// corsMiddleware answers preflights and stamps the CORS headers trackers
// need for credentialed cross-origin posts.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		if origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Max-Age", "3600")
		h.Set("Access-Control-Allow-Headers",
			"Content-Type, SP-Anonymous, Anonymous, Origin, Referer, User-Agent")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
