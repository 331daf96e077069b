package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"copytraderv1/config"
	"copytraderv1/internal/api"
	"copytraderv1/internal/feed"
	"copytraderv1/internal/journal"
	"copytraderv1/internal/logsink"
	"copytraderv1/internal/metrics"
	"copytraderv1/internal/model"
	"copytraderv1/internal/registry"
	"copytraderv1/internal/replicator"
	"copytraderv1/internal/rules"
	"copytraderv1/internal/session"
	"copytraderv1/internal/sheets"
)

func main() {
	// A missing .env is fine; the environment may be set by the deployer.
	_ = godotenv.Load()

	cfg := config.Load()

	for _, p := range []string{cfg.AccountsPath, cfg.LogPath, cfg.JournalPath} {
		if dir := filepath.Dir(p); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
	}

	if err := logsink.Init(cfg.LogPath); err != nil {
		log.Fatalf("[server] log init failed: %v", err)
	}
	log.Info("[server] starting...")

	// ---- Accounts ----
	reg := registry.New(&registry.FileStore{Path: cfg.AccountsPath})
	if err := reg.Load(); err != nil {
		if errors.Is(err, model.ErrMultiplePrimaries) {
			log.Fatalf("[server] invalid accounts config: %v", err)
		}
		log.Warnf("[server] accounts load failed: %v (continuing with no accounts)", err)
	}

	// ---- Eligibility rules ----
	ruleSet, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		log.Warnf("[server] rules load failed: %v (using defaults)", err)
	}

	// ---- Health & metrics ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Replication journal ----
	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[server] journal init failed: %v", err)
	}
	defer jrnl.Close()
	health.SetJournalOK(true)
	log.Info("[server] journal ready")

	// ---- Optional redis mirroring ----
	var publisher *feed.Publisher
	if cfg.RedisEnabled() {
		publisher, err = feed.NewPublisher(feed.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Warnf("[server] redis init failed: %v (continuing without redis)", err)
		} else {
			health.SetRedisConnected(true)
			defer publisher.Close()
		}
	}

	// ---- Optional sheet export ----
	var exporter api.TradeExporter
	if cfg.SheetsEnabled() {
		exp, err := sheets.New(context.Background(), cfg.SheetsKeyBase64, cfg.SpreadsheetID, cfg.SheetName)
		if err != nil {
			log.Warnf("[server] sheets init failed: %v (export disabled)", err)
		} else {
			exporter = exp
			log.Info("[server] sheet export ready")
		}
	}

	// ---- Core wiring ----
	hub := feed.NewHub()
	gateway := session.New(reg)

	engineCfg := replicator.EngineConfig{
		Accounts: reg,
		Rules:    ruleSet,
		Placer:   gateway,
		Policy:   replicator.DefaultRetryPolicy,
		Hub:      hub,
		Journal:  jrnl,
		Metrics:  prom,
	}
	if publisher != nil {
		engineCfg.Outcomes = publisher
	}
	engine := replicator.NewEngine(engineCfg)
	controller := replicator.NewController(reg, gateway, engine)

	apiServer := api.NewServer(api.Config{
		Accounts:       reg,
		Gateway:        gateway,
		Controller:     &runControl{Controller: controller, health: health},
		Hub:            hub,
		Exporter:       exporter,
		LogPath:        cfg.LogPath,
		StreamInterval: cfg.StreamInterval,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Router(),
	}
	go func() {
		log.Infof("[server] api listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] api server error: %v", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("[server] shutdown signal received, cleaning up...")

	if err := controller.Stop(); err != nil {
		log.Errorf("[server] replication stop failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Info("[server] shutdown complete.")
}

// runControl keeps the health status in step with the replication run.
type runControl struct {
	*replicator.Controller
	health *metrics.HealthStatus
}

func (r *runControl) Start() error {
	if err := r.Controller.Start(); err != nil {
		return err
	}
	r.health.SetWSConnected(true)
	r.health.SetReplicationActive(true)
	return nil
}

func (r *runControl) Stop() error {
	if err := r.Controller.Stop(); err != nil {
		return err
	}
	r.health.SetWSConnected(false)
	r.health.SetReplicationActive(false)
	return nil
}
