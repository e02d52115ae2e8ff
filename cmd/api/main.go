package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"surveydialer/internal/archive"
	"surveydialer/internal/artifact"
	"surveydialer/internal/audit"
	"surveydialer/internal/auth"
	"surveydialer/internal/branding"
	"surveydialer/internal/config"
	"surveydialer/internal/dialer"
	"surveydialer/internal/download"
	"surveydialer/internal/httpapi"
	"surveydialer/internal/ivr"
	"surveydialer/internal/metrics"
	"surveydialer/internal/reporting"
	"surveydialer/internal/tracker"
	"surveydialer/internal/voice"
	"surveydialer/internal/webhooks"
	"surveydialer/pkg/logger"
	"surveydialer/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	artifacts, err := artifact.NewStore(cfg.Artifact.Dir)
	if err != nil {
		log.Error("artifact store init failed", "err", err)
		os.Exit(1)
	}

	// The tracker's sink chain: disk snapshots always, Postgres archive of
	// terminal records when a database is configured.
	sink := tracker.Sink(artifacts)
	if cfg.ArchiveEnabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := archive.NewPostgresRepository(db)
		if err := repo.EnsureSchema(rootCtx); err != nil {
			log.Error("archive schema init failed", "err", err)
			os.Exit(1)
		}
		sink = tracker.MultiSink{artifacts, archive.NewSink(repo, log)}
	}

	trk := tracker.New(sink, log)
	surveys := ivr.NewSurveyStore(artifacts, log)

	tokens, err := voice.NewTokenSourceFromFile(cfg.Voice.ApplicationID, cfg.Voice.PrivateKeyPath)
	if err != nil {
		log.Error("voice key init failed", "err", err)
		os.Exit(1)
	}
	voiceClient := voice.NewClient(voice.ClientConfig{
		APIBase: cfg.Voice.APIBase,
		Timeout: cfg.Voice.HTTPTimeout,
	}, tokens, log)

	machine := ivr.NewMachine(nil, surveys, trk, voiceClient,
		cfg.WebhookURL("dtmf_input"),
		cfg.WebhookURL("recording"),
		log)

	// Downloads use a dedicated client so large artifact fetches get their
	// own timeout.
	downloadClient := voice.NewClient(voice.ClientConfig{
		APIBase: cfg.Voice.APIBase,
		Timeout: cfg.Download.HTTPTimeout,
	}, tokens, log)
	pool, err := download.NewPool(download.Config{
		Dir:            cfg.Download.Dir,
		Workers:        cfg.Download.Workers,
		MaxRetries:     cfg.Download.MaxRetries,
		InitialBackoff: cfg.Download.RetryInitialDelay,
		SweepRetries:   cfg.Download.SweepRetries,
	}, downloadClient, log)
	if err != nil {
		log.Error("download pool init failed", "err", err)
		os.Exit(1)
	}
	pool.Start(rootCtx)

	var brander dialer.Brander
	if cfg.Branding.APIKey != "" {
		brander = branding.NewFlow(
			branding.NewClient(branding.Config{
				AuthURL:   cfg.Branding.AuthURL,
				PushURL:   cfg.Branding.PushURL,
				APIKey:    cfg.Branding.APIKey,
				APISecret: cfg.Branding.APISecret,
				Timeout:   cfg.Branding.HTTPTimeout,
			}, log),
			trk,
			cfg.Voice.FromNumber,
			cfg.Branding.PropagationDelay,
			log)
	} else {
		log.Warn("branding credentials missing, calls go out unbranded")
	}

	d := dialer.New(dialer.Config{
		FromNumber:        cfg.Voice.FromNumber,
		RingingTimer:      cfg.Voice.RingingTimer,
		MaxRetries:        cfg.Dialer.MaxRetries,
		RetryInitialDelay: cfg.Dialer.RetryInitialDelay,
		EventURL:          cfg.WebhookURL("event"),
		RecordingURL:      cfg.WebhookURL("recording"),
	}, trk, brander, voiceClient, log)

	limiter := dialer.SlotLimiter(dialer.NewLocalLimiter(cfg.Dialer.ConcurrencyLimit))
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter = dialer.NewRedisLimiter(rdb, cfg.Voice.FromNumber, cfg.Dialer.ConcurrencyLimit, 0)
	}
	campaign := dialer.NewCampaign(d, limiter, cfg.Dialer.InterCallMin, cfg.Dialer.InterCallMax, log)

	// Operator API is optional: without a JWT secret only webhooks, health
	// and metrics are served.
	var authManager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET missing, operator api disabled")
	}

	// Operator actions land in an append-only JSONL trail next to the call
	// artifacts.
	auditRepo, err := audit.NewJSONLRepo(cfg.Artifact.Dir)
	if err != nil {
		log.Error("audit trail init failed", "err", err)
		os.Exit(1)
	}
	auditTrail := audit.NewService(auditRepo)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth: authManager,
		webhooks: webhooks.Handlers{
			Tracker:   trk,
			Machine:   machine,
			Downloads: pool,
			Artifacts: artifacts,
			Log:       log,
		},
		api: httpapi.Handlers{
			Auth:      authManager,
			Tracker:   trk,
			Dialer:    d,
			Campaign:  campaign,
			Downloads: pool,
			Reports:   reporting.NewService(trk, surveys, nil),
			Audit:     auditTrail,
			Log:       log,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("dialer listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	pool.Shutdown()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
