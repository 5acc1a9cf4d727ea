package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexhub/persona-gateway/internal/channel"
	"github.com/cortexhub/persona-gateway/internal/channel/console"
	"github.com/cortexhub/persona-gateway/internal/channel/discord"
	"github.com/cortexhub/persona-gateway/internal/channel/telegram"
	"github.com/cortexhub/persona-gateway/internal/channel/webchat"
	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/config"
	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/memory"
	"github.com/cortexhub/persona-gateway/internal/module"
	"github.com/cortexhub/persona-gateway/internal/orchestrator"
	"github.com/cortexhub/persona-gateway/internal/prefs"
	"github.com/cortexhub/persona-gateway/internal/provider"
	"github.com/cortexhub/persona-gateway/internal/reminder"
	"github.com/cortexhub/persona-gateway/internal/server"
)

const version = "1.0.0"

// stats bundles the pieces the HTTP server reports on.
type stats struct {
	orch   *orchestrator.Orchestrator
	sched  *reminder.Scheduler
	router *channel.Router
	gw     *provider.Gateway
}

func (s stats) SessionCount() int       { return s.orch.SessionCount() }
func (s stats) PendingReminders() int   { return s.sched.PendingCount() }
func (s stats) Platforms() []string     { return s.router.Platforms() }
func (s stats) ProviderNames() []string { return s.gw.Names() }

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	logger := logging.WithComponent("main")
	logger.Info("Starting Persona-Gateway", "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.Logging.Level)

	var store prefs.Store
	switch cfg.Prefs.Backend {
	case "redis":
		store, err = prefs.NewRedisStore(cfg.Prefs.RedisAddr, cfg.Prefs.RedisDB)
	default:
		store, err = prefs.NewFileStore(cfg.Prefs.Path)
	}
	if err != nil {
		logger.Error("Failed to open preferences store", "error", err)
		os.Exit(1)
	}
	logger.Info("Preferences store ready", "backend", cfg.Prefs.Backend)

	catalog, err := character.NewCatalog(cfg.Characters.Dir, cfg.Characters.DefaultID, store)
	if err != nil {
		logger.Error("Failed to load character catalog", "error", err)
		os.Exit(1)
	}

	gw, err := provider.NewGateway(cfg.Providers, store)
	if err != nil {
		logger.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}

	index, err := memory.NewChromemIndex(cfg.Memory.VectorPath, gw.GenerateEmbedding)
	if err != nil {
		logger.Error("Failed to open vector index", "error", err)
		os.Exit(1)
	}
	msgStore := memory.NewStore(index)

	registry := module.NewRegistry()
	orch := orchestrator.New(msgStore, catalog, registry, gw, orchestrator.Options{
		MaxContextMessages: cfg.Memory.MaxContextMessages,
		MaxSimilarMessages: cfg.Memory.MaxSimilarMessages,
		UseContextSearch:   cfg.UseContextSearch(),
	})

	router := channel.NewRouter(func(ctx context.Context, userID, platform, text string) string {
		return orch.ProcessMessage(ctx, userID, platform, text)
	})
	router.Register(telegram.New(cfg.Telegram.Token))
	router.Register(discord.New(cfg.Discord.Token))
	router.Register(webchat.New(cfg.WebChat.Port))
	router.Register(console.New(cfg.Console.Enabled))

	sched := reminder.NewScheduler(router)
	if err := sched.AddHousekeeping("@every 30m", func() {
		orch.PruneIdleSessions(24 * time.Hour)
	}); err != nil {
		logger.Error("Failed to register housekeeping job", "error", err)
		os.Exit(1)
	}
	sched.Start()
	logger.Info("Reminder scheduler started")

	// Core first so its commands win name collisions.
	registry.Register(module.NewCoreModule(catalog, registry, orch))
	registry.Register(module.NewReminderModule(sched))
	registry.Register(module.NewProviderModule(gw))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := router.Start(ctx); err != nil {
		logger.Error("Failed to start channels", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, catalog, stats{orch: orch, sched: sched, router: router, gw: gw})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	router.Stop()
	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
}
