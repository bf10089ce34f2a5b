// Package server exposes the inference and management HTTP surfaces over the
// resolved transport identity. Error responses consult the admission gate, so
// a category whose error rate has tripped degrades to the configured throttle
// status code.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maaquib/djl-serving/internal/config"
	"github.com/maaquib/djl-serving/internal/identity"
	"github.com/maaquib/djl-serving/internal/ratelimit"
)

// Server wires the frozen configuration, the resolved transport identity and
// the admission gate into the two listening surfaces.
type Server struct {
	cfg   *config.Config
	gate  *ratelimit.Gate
	ident *identity.Identity
	log   zerolog.Logger
}

func New(cfg *config.Config, gate *ratelimit.Gate, ident *identity.Identity, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, gate: gate, ident: ident, log: log}
}

// Run starts the inference and management listeners and blocks until ctx is
// cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	inference, err := s.configureListener(s.cfg.InferenceAddress(), s.InferenceHandler())
	if err != nil {
		return fmt.Errorf("%s: %w", config.KeyInferenceAddress, err)
	}
	management, err := s.configureListener(s.cfg.ManagementAddress(), s.ManagementHandler())
	if err != nil {
		return fmt.Errorf("%s: %w", config.KeyManagementAddress, err)
	}

	errs := make(chan error, 2)
	for _, srv := range []*http.Server{inference, management} {
		go func() {
			s.log.Info().Str("addr", srv.Addr).Bool("tls", srv.TLSConfig != nil).Msg("listening")
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{inference, management} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Str("addr", srv.Addr).Msg("shutdown")
		}
	}
	return nil
}

// configureListener builds an HTTP server for a binding of the form
// scheme://host:port. An https binding attaches the resolved transport
// identity; the identity is shared between surfaces and never mutated.
func (s *Server) configureListener(binding string, handler http.Handler) (*http.Server, error) {
	u, err := url.Parse(binding)
	if err != nil {
		return nil, fmt.Errorf("invalid binding %q: %w", binding, err)
	}

	srv := &http.Server{
		Addr:              u.Host,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       s.cfg.ChunkedReadTimeout(),
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}

	switch u.Scheme {
	case "https":
		srv.TLSConfig = s.ident.TLS.Clone()
	case "http":
	default:
		return nil, fmt.Errorf("invalid binding %q: unsupported scheme %q", binding, u.Scheme)
	}
	return srv, nil
}

// InferenceHandler returns the handler for the inference surface.
func (s *Server) InferenceHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /invocations", s.handleInvocations)
	mux.HandleFunc("POST /predictions/{model}", s.handleInvocations)
	return s.wrap(mux)
}

// ManagementHandler returns the handler for the management surface,
// including metrics.
func (s *Server) ManagementHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.wrap(mux)
}

func (s *Server) wrap(h http.Handler) http.Handler {
	h = AccessLogMiddleware(s.log)(h)
	h = RequestIDMiddleware(s.cfg.RequestIDHeaderKey())(h)
	return h
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy"})
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxRequestSize()))

	model := r.PathValue("model")
	if model == "" {
		model = r.URL.Query().Get("model_name")
	}
	if model == "" {
		model = "default"
	}
	// No model runtime is wired in; every invocation is a model failure.
	s.WriteError(w, r, ratelimit.CategoryModel, http.StatusNotFound,
		fmt.Sprintf("Model not found: %s", model))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
