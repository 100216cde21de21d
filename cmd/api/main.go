package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"quotedesk/api/internal/config"
	"quotedesk/api/internal/gitrepo"
	"quotedesk/api/internal/logging"
	"quotedesk/api/internal/moderation"
	"quotedesk/api/internal/quotefile"
	"quotedesk/api/internal/staging"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "quotedesk-api"})
	ctx := context.Background()

	var store staging.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info().Msg("using redis staging store")
		redisStore, err := staging.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		store = redisStore
	} else {
		log.Info().Msg("using postgres staging store")
		db, err := staging.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		if err := staging.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		store = staging.NewPostgresStore(db)
	}
	defer store.Close()

	gateway := openGateway(cfg, log)
	files := quotefile.New(cfg.WorkdirPath, cfg.QuotesSubdir)

	service := moderation.New(cfg, store, files, gateway, logging.Named(log, "moderation"))
	httpServer := moderation.NewHTTPServer(service, logging.Named(log, "http"))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("quotedesk api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

// openGateway opens the canonical quotes working copy. A failure degrades the
// service instead of stopping it: staging operations keep serving while every
// publish attempt reports the startup failure.
func openGateway(cfg config.Config, log zerolog.Logger) gitrepo.Gateway {
	gateway, err := gitrepo.Open(gitrepo.Options{
		Dir:         cfg.WorkdirPath,
		PullRemote:  cfg.PullRemote,
		PushRemote:  cfg.PushRemote,
		Branch:      cfg.Branch,
		AuthorName:  cfg.AuthorName,
		AuthorEmail: cfg.AuthorEmail,
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.WorkdirPath).Msg("version control gateway unavailable")
		return gitrepo.Unavailable(err)
	}
	return gateway
}
