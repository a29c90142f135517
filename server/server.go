// Package server exposes the conversational stream and the medication
// REST surface over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	chatx "github.com/careloop/healthcoach/agent/chat"
	medicationx "github.com/careloop/healthcoach/agent/medication"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":8000"`
	APIToken        string        `envconfig:"API_TOKEN" split_words:"true"`
	RatePerSec      float64       `envconfig:"RATE_PER_SEC" split_words:"true" default:"10"`
	RateBurst       int           `envconfig:"RATE_BURST" split_words:"true" default:"20"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

type Server struct {
	cfg         Config
	chats       *chatx.Service
	medications medicationx.Store
	metrics     *Metrics

	httpServer *http.Server
}

func New(cfg Config, chats *chatx.Service, medications medicationx.Store) (*Server, error) {
	if chats == nil {
		return nil, errors.New("chat service is required")
	}
	if medications == nil {
		return nil, errors.New("medication store is required")
	}

	s := &Server{
		cfg:         cfg,
		chats:       chats,
		medications: medications,
		metrics:     NewMetrics(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /medications", s.handleListMedications)
	mux.HandleFunc("DELETE /medications/{name}", s.handleDeleteMedication)
	mux.HandleFunc("DELETE /medications", s.handleClearMedications)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = requireAuth(handler, cfg.APIToken)
	handler = rateLimit(handler, cfg.RatePerSec, cfg.RateBurst)
	handler = securityHeaders(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains with the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
