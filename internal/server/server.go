package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"imgstore/internal/blobstore"
)

const (
	allowRemoteEnvKey = "IMGSTORE_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	// Room for multipart framing around the largest allowed file.
	multipartOverhead = 1 << 20
)

// Options configures a Server.
type Options struct {
	BackendName    string
	General        UploadPolicy
	Owner          UploadPolicy
	AdminTokenHash string
	UploadRate     float64
	UploadBurst    int
}

// Server wraps HTTP handlers for the imgstore API.
type Server struct {
	addr           string
	backendName    string
	images         *ImageService
	logger         *slog.Logger
	adminTokenHash string
	uploadLimiter  *rate.Limiter
	maxUploadBody  int64
}

// New creates a new server instance.
func New(addr string, backend blobstore.Backend, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	maxFile := opts.General.MaxSizeBytes
	if opts.Owner.MaxSizeBytes > maxFile {
		maxFile = opts.Owner.MaxSizeBytes
	}

	return &Server{
		addr:           addr,
		backendName:    opts.BackendName,
		images:         NewImageService(backend, opts.General, opts.Owner, logger),
		logger:         logger,
		adminTokenHash: strings.TrimSpace(opts.AdminTokenHash),
		uploadLimiter:  newUploadLimiter(opts.UploadRate, opts.UploadBurst),
		maxUploadBody:  maxFile + multipartOverhead,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withCORS(s.routes()))
}

// ListenAndServe starts the HTTP server and blocks until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log().Info("starting server", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
