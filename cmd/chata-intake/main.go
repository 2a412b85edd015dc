package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chata-intake/common/logger"
	"chata-intake/internal/bootstrap"
	"chata-intake/internal/catalog"
	"chata-intake/internal/config"
	"chata-intake/internal/drafts"
	"chata-intake/internal/formstate"
	httpapi "chata-intake/internal/http"
	"chata-intake/internal/service"
	"chata-intake/internal/submission"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "chata-intake")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		log.Fatal("Failed to load catalog", zap.String("path", cfg.CatalogFile), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	draftStore := drafts.NewStore(backends.KV, cfg.Store.DraftTTL, log)
	debouncer := drafts.NewDebouncer(draftStore, cfg.Store.Debounce, log)
	forms := formstate.New(cat, draftStore, debouncer, log)

	formatter := submission.NewFormatter(cat, cfg.Sheety.MaxFieldLength)
	sheety := submission.NewSheetyClient(submission.SheetyConfig{
		BaseURL:   cfg.Sheety.BaseURL,
		Project:   cfg.Sheety.Project,
		Sheet:     cfg.Sheety.Sheet,
		Token:     cfg.Sheety.Token,
		Timeout:   cfg.Sheety.Timeout,
		Retry:     cfg.Sheety.Retry,
		RateLimit: cfg.Sheety.RateLimit,
		Burst:     cfg.Sheety.Burst,
	}, log)
	if cfg.Sheety.Project == "" {
		log.Warn("SHEETY_PROJECT is not set, submissions will fail")
	}
	submitter := submission.NewSubmitter(forms, formatter, sheety, backends.Submissions, backends.Events, log)

	router := httpapi.NewRouter(log)
	router.RegisterIntakeRoutes(httpapi.NewIntakeHandler(forms, draftStore, formatter, submitter, log))
	router.RegisterSubmissionRoutes(httpapi.NewSubmissionsHandler(backends.Submissions, log))
	router.RegisterHealthRoutes(backends.Health)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return backends.PurgeLoop(gctx, purgeInterval, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Stop(shutdownCtx)
		// in-flight edits are written before the stores close
		forms.Flush(shutdownCtx)
		debouncer.Stop()
		log.Info("Shutdown complete", zap.Int("live_sessions", forms.Live()))
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("chata-intake exited with error", zap.Error(err))
		backends.Close()
		_ = log.Sync()
		os.Exit(1)
	}
}
