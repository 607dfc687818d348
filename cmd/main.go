package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/database"
	"github.com/mtbridge/signal-bridge/internal/handlers"
	"github.com/mtbridge/signal-bridge/internal/logger"
	"github.com/mtbridge/signal-bridge/internal/routes"
	"github.com/mtbridge/signal-bridge/internal/services"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config from %s: %v, using defaults\n", *configFile, err)
		cfg = config.Default()
	}

	zlog, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()
	log := zlog.Sugar()

	// Initialize database
	if err := database.InitDatabase(cfg.Database.DSN); err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	db := database.GetDB()

	// Set up services
	users := services.NewUserService(db, cfg, log)
	mappings := services.NewMappingService(db)
	risk := services.NewRiskResolver(cfg)
	queue := services.NewQueueService(db, cfg, log)
	notify := services.NewNotifyService(cfg, log)
	ingest := services.NewIngestService(users, mappings, risk, queue, notify, cfg, log)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	routes.SetupRoutes(r, cfg, &routes.Handlers{
		Webhook:  handlers.NewWebhookHandler(ingest, log),
		Delivery: handlers.NewDeliveryHandler(users, queue, notify, log),
		Signals:  handlers.NewSignalHandler(queue, log),
		Accounts: handlers.NewAccountHandler(users, mappings, log),
		Auth:     handlers.NewAuthHandler(users, cfg, log),
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("starting server",
			"addr", addr,
			"webhook", fmt.Sprintf("http://%s/api/v1/webhook/tradingview", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expiry sweep runs beside the server, sharing the same CAS
	// transition primitive as the request handlers.
	g.Go(func() error {
		interval := time.Duration(cfg.Signals.SweepIntervalSeconds) * time.Second
		err := queue.RunSweeper(ctx, interval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("server exited", "error", err)
	}
}
