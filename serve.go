package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/db"
	"dolphinpod/internal/events"
	appmw "dolphinpod/internal/http/middleware"
	"dolphinpod/internal/identity"
	"dolphinpod/internal/ingest"
	"dolphinpod/internal/llm"
	"dolphinpod/internal/nightmode"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily rollup",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// services are the long-lived components the routes are built from.
type services struct {
	db         *gorm.DB
	defaultLoc *time.Location
	classifier *ingest.Classifier
	reporter   *llm.Reporter
	verifier   *identity.GoogleVerifier
	sessions   *identity.Sessions
	limiter    *appmw.RateLimiter
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("starting dolphinpod")

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.EnsureBootstrapAdmin(gdb, cfg); err != nil {
		return fmt.Errorf("failed to ensure bootstrap admin: %w", err)
	}

	defaultLoc, err := time.LoadLocation(cfg.App.DefaultTimezone)
	if err != nil {
		return err
	}
	window, err := nightmode.ParseWindow(cfg.NightMode.DefaultStart, cfg.NightMode.DefaultEnd)
	if err != nil {
		return err
	}

	scheduler, err := db.StartRollupScheduler(gdb, cfg.Rollup.Schedule, defaultLoc, logger)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PublishTimeout)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing usage events")
	}
	defer publisher.Close()

	var cache llm.ReportCache
	if cfg.Redis.Addr != "" {
		rdb, err := llm.NewRedisClient(cmd.Context(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("report cache disabled")
		} else {
			defer rdb.Close()
			cache = llm.NewRedisReportCache(rdb, cfg.Redis.ReportTTL)
		}
	}

	verifier, err := identity.NewGoogleVerifier(cfg.Auth.GoogleClientID, cfg.Auth.GoogleCertsURL)
	if err != nil {
		return err
	}
	sessions, err := identity.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}

	completer := llm.NewClient(llm.ClientConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})

	svc := &services{
		db:         gdb,
		defaultLoc: defaultLoc,
		classifier: ingest.NewClassifier(db.NewUsageStore(gdb), publisher,
			ingest.Defaults{Window: window, Location: defaultLoc}, logger),
		reporter: llm.NewReporter(completer, cache, logger),
		verifier: verifier,
		sessions: sessions,
		limiter:  appmw.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}

	r := router.New()
	r.SaveMatchedRoutePath = true
	registerRoutes(r, svc)

	server := &fasthttp.Server{
		Handler:      appmw.RequestLogger(logger)(r.Handler),
		Name:         "dolphinpod",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}
	return serveUntilSignal(cmd.Context(), server, cfg.Server.ListenAddr, logger)
}

func serveUntilSignal(ctx context.Context, server *fasthttp.Server, addr string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("dolphinpod listening")
		errCh <- server.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}
