package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imgstore/internal/blobstore"
	"imgstore/internal/config"
	"imgstore/internal/pgstore"
	"imgstore/internal/server"
	"imgstore/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the imgstore API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := componentLogger("server", cfg)

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, closer, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			srv := server.New(addr, backend, serverOptions(cfg), logger)
			return srv.ListenAndServe(ctx)
		},
	}
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		BackendName: cfg.Backend,
		General: server.UploadPolicy{
			MaxSizeBytes:      cfg.Uploads.GeneralMaxBytes,
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
		},
		Owner: server.UploadPolicy{
			MaxSizeBytes:      cfg.Uploads.OwnerMaxBytes,
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
		},
		AdminTokenHash: cfg.AdminTokenHash,
		UploadRate:     cfg.Uploads.RatePerSecond,
		UploadBurst:    cfg.Uploads.Burst,
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openBackend builds the configured backend, wrapped in the Redis cache when
// an address is set. The returned closer releases every opened resource.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.Backend, io.Closer, error) {
	var (
		backend blobstore.Backend
		closers []io.Closer
	)

	switch cfg.Backend {
	case config.BackendFS:
		logger.Info("opening upload directory", "path", cfg.UploadDir)
		dir, err := blobstore.NewLocalDir(cfg.UploadDir)
		if err != nil {
			return nil, nil, err
		}
		backend = dir
	case config.BackendSQLite:
		logger.Info("opening database", "path", cfg.DBPath)
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		backend = st
		closers = append(closers, st)
	case config.BackendPostgres:
		logger.Info("opening postgres")
		st, err := pgstore.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		backend = st
		closers = append(closers, st)
	case config.BackendS3:
		logger.Info("opening bucket", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
		st, err := blobstore.NewMinioStore(ctx, blobstore.MinioOptions{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = st
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Redis.Address != "" {
		logger.Info("enabling image cache", "redis", cfg.Redis.Address)
		cache, err := blobstore.NewRedisCache(ctx, cfg.Redis.Address, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err != nil {
			_ = closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, cache)
		backend = blobstore.NewCachedStore(backend, cache, cfg.Redis.MaxBytes, logger)
	}

	return backend, closerFunc(func() error { return closeAll(closers) }), nil
}

func closeAll(closers []io.Closer) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
