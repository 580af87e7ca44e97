package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/printworks/relay/internal/api"
	"github.com/printworks/relay/internal/api/handlers"
	"github.com/printworks/relay/internal/api/middleware"
	"github.com/printworks/relay/internal/cluster"
	"github.com/printworks/relay/internal/config"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/feed"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/monitor"
	"github.com/printworks/relay/internal/poller"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

// quotaDirectory provisions ledger accounts from the quota backend's user
// registry.
type quotaDirectory struct {
	quota printer.QuotaService
}

func (d *quotaDirectory) Lookup(ctx context.Context, username string) (bool, error) {
	return d.quota.UserExists(ctx, username)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] invalid config: %v", err)
	}

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	var quota printer.QuotaService
	var directory ledger.Directory
	if cfg.Poller.QuotaEndpoint != "" {
		client := printer.NewQuotaClient(cfg.Poller.QuotaEndpoint, cfg.Poller.RequestTimeout)
		quota = client
		directory = &quotaDirectory{quota: client}
	}

	ledgerSvc := ledger.NewService(db.GetDB(), directory)
	backend := printer.NewTCPBackend(cfg.Poller.RequestTimeout)
	defer backend.Close()

	hub := feed.NewHub()
	hub.Start()
	defer hub.Stop()

	liveness := cluster.NewLivenessTable(cfg.Poller.HeartbeatInterval, cfg.Poller.HeartbeatsPerPoll)
	cache := cluster.NewProxyCache()
	proxy := cluster.NewProxyClient(cfg.Poller.RequestTimeout)
	router := cluster.NewRouter(liveness)

	connections := make([]*supplier.Connection, 0, len(cfg.Connections))
	for _, cc := range cfg.Connections {
		connections = append(connections, supplier.Connect(cc, cfg.Poller.Simulate, cfg.Poller.RequestTimeout))
	}

	dispatcher := dispatch.NewDispatcher(ledgerSvc, backend, cfg.Poller)
	mon := monitor.New(ledgerSvc, quota, backend)

	orchestrator := poller.NewOrchestrator(poller.Deps{
		Config:      cfg.Poller,
		Connections: connections,
		Router:      router,
		Liveness:    liveness,
		Cache:       cache,
		Proxy:       proxy,
		Dispatcher:  dispatcher,
		Monitor:     mon,
		Ledger:      ledgerSvc,
		Quota:       quota,
		Feed:        hub,
	})

	auth, err := middleware.NewAuthMiddleware()
	if err != nil {
		log.Fatalf("[main] failed to initialize auth: %v", err)
	}

	engine := api.SetupRouter(api.Handlers{
		Auth:       auth,
		Dispatches: handlers.NewDispatchHandler(),
		Documents:  handlers.NewDocumentHandler(),
		Printers:   handlers.NewPrinterHandler(),
		Accounts:   handlers.NewAccountHandler(),
		Admin:      handlers.NewAdminHandler(ledgerSvc, liveness, cache, orchestrator, hub),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- orchestrator.Run(ctx, 0)
	}()

	go func() {
		log.Printf("[main] listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[main] received %s, shutting down", sig)
	case err := <-loopDone:
		if err != nil {
			log.Printf("[main] poll loop stopped: %v", err)
		} else {
			log.Printf("[main] poll loop stopped")
		}
	}

	orchestrator.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}

	orchestrator.Disconnect()
	log.Printf("[main] stopped")
}
