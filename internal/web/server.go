package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// shutdownTimeout bounds how long open requests and event streams may take
// to finish once a signal arrives.
const shutdownTimeout = 5 * time.Second

// NewServer creates and configures the HTTP server for the Shelf web UI.
func NewServer(c *ops.Coordinator, cfg *config.Config, log *logger.Logger, version, bind string, port int) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("service", "web")

	h := newHandlers(c, cfg, log, NewRenderer(templateSub, version, log))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           h.routes(staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never go idle on their own.
	srv.RegisterOnShutdown(h.stop)
	return srv, nil
}

// routes builds the handler tree.
func (h *Handlers) routes(static fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/spaces", http.StatusFound)
	})
	mux.HandleFunc("GET /spaces", h.HandleSpaces)
	mux.HandleFunc("GET /spaces/{space}/{kind}", h.HandleScope)
	mux.HandleFunc("GET /spaces/{space}/{kind}/events", h.HandleScopeEvents)
	mux.HandleFunc("POST /spaces/{space}/{kind}/reorder", h.HandleReorder)
	mux.HandleFunc("GET /entries/{id}", h.HandleEntry)
	mux.HandleFunc("GET /entries/{id}/events", h.HandleChildrenEvents)
	mux.HandleFunc("POST /children/{id}/toggle", h.HandleToggle)
	mux.HandleFunc("POST /purge", h.HandlePurge)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return securityHeaders(requestLogger(h.log, mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogger logs one line per request.
func requestLogger(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("shelf UI running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
