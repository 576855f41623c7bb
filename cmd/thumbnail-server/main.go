package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	thumbnailer "github.com/menta2k/image-thumbnailer"
	"github.com/menta2k/image-thumbnailer/internal/config"
	"github.com/menta2k/image-thumbnailer/internal/logger"
	"github.com/menta2k/image-thumbnailer/internal/server"
	"github.com/menta2k/image-thumbnailer/internal/storage"
	"github.com/menta2k/image-thumbnailer/internal/storage/fs"
	"github.com/menta2k/image-thumbnailer/internal/storage/s3"
	"github.com/menta2k/image-thumbnailer/pkg/fetch"
	"github.com/menta2k/image-thumbnailer/pkg/processing"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("THUMB_CONFIG"), "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Log.Env, cfg.Log.Level)

	format, err := types.ParseOutputFormat(cfg.Thumbnail.OutputFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid output format")
	}

	engine := processing.NewProcessorWithConfig(processing.Config{
		JPEGQuality:  cfg.Thumbnail.JPEGQuality,
		WebPQuality:  cfg.Thumbnail.WebPQuality,
		WebPLossless: cfg.Thumbnail.WebPLossless,
	})

	thumbs := thumbnailer.NewWithConfig(thumbnailer.Config{
		Engine:       engine,
		OutputFormat: format,
		MaxPixels:    cfg.Thumbnail.MaxPixels,
		Logger:       &log,
	})

	fetcher := fetch.NewWithConfig(fetch.Config{
		Timeout:      cfg.Upstream.Timeout,
		UserAgent:    cfg.Upstream.UserAgent,
		MaxBodyBytes: cfg.Upstream.MaxBodyBytes,
	})

	srv := server.New(server.Options{
		Config:      cfg,
		Fetcher:     fetcher,
		Thumbnailer: thumbs,
		Store:       newStore(cfg.Storage, log),
		Logger:      log,
	})

	httpServer := server.NewHTTPServer(cfg.Server, srv.Handler())

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("version", thumbnailer.GetVersion()).Msg("thumbnail server listening")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server")
	}
	log.Info().Msg("server stopped")
}

func newStore(cfg config.StorageConfig, log zerolog.Logger) storage.Store {
	switch cfg.Driver {
	case config.StorageFS:
		log.Info().Str("root", cfg.FSRoot).Msg("caching thumbnails on disk")
		return &fs.Store{Root: cfg.FSRoot}
	case config.StorageS3:
		log.Info().Str("endpoint", cfg.S3.Endpoint).Str("bucket", cfg.S3.Bucket).Msg("caching thumbnails in s3")
		return &s3.Store{
			Secure:    cfg.S3.Secure,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		}
	default:
		return nil
	}
}
