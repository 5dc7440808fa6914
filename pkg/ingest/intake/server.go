package intake

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/fathom-etl/pkg/buildinfo"
	"github.com/otherjamesbrown/fathom-etl/pkg/db"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// Routes served by NewServer.
const (
	WebhookPath = "/webhooks/fathom"
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
	VersionPath = "/version"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig configures the intake HTTP server.
type ServerConfig struct {
	Addr    string
	Webhook http.Handler

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Database backs /healthz. Nil reports healthy with no database.
	Database db.Pinger
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string           `json:"status"`
	Database *db.HealthStatus `json:"database,omitempty"`
}

// NewServer builds the intake server.
func NewServer(cfg ServerConfig) *http.Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+WebhookPath, cfg.Webhook)
	mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+HealthPath, healthHandler(cfg.Database))
	mux.HandleFunc("GET "+VersionPath, buildinfo.Handler(logging.ServiceName))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func healthHandler(pinger db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger == nil {
			writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		status := db.Check(ctx, pinger)
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: &status})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: &status})
	}
}

// Serve runs srv until ctx is cancelled or the listener fails, then shuts it
// down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server starting", logging.F("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
