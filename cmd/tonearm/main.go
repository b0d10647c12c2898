package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/adapter/ytmusic"
	"github.com/tonearm/tonearm/internal/advisor"
	"github.com/tonearm/tonearm/internal/api"
	"github.com/tonearm/tonearm/internal/config"
	"github.com/tonearm/tonearm/internal/database"
	"github.com/tonearm/tonearm/internal/engine"
	"github.com/tonearm/tonearm/internal/grouper"
	"github.com/tonearm/tonearm/internal/history"
	"github.com/tonearm/tonearm/internal/logger"
	"github.com/tonearm/tonearm/internal/metadata"
	"github.com/tonearm/tonearm/internal/metrics"
	"github.com/tonearm/tonearm/internal/orchestrator"
	"github.com/tonearm/tonearm/internal/profile"
	"github.com/tonearm/tonearm/internal/query"
	"github.com/tonearm/tonearm/internal/scheduler"
	"github.com/tonearm/tonearm/internal/scheduler/tasks"
	"github.com/tonearm/tonearm/internal/selector"
	"github.com/tonearm/tonearm/internal/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "0.3.0-dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	profileName := flag.String("profile", "", "Source profile to activate")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *profileName != "" {
		cfg.Profile.Name = *profileName
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer log.Close()

	log.Info().
		Str("version", Version).
		Str("logLevel", cfg.Log.Level).
		Msg("starting tonearm")

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// History store
	var (
		db             *database.DB
		historyService *history.Service
	)
	if cfg.History.Enabled {
		db, err = database.New(cfg.Database.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		defer db.Close()

		log.Info().Msg("running database migrations")
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		historyService = history.NewService(db.Conn(), log.Logger)
	}

	// Advisor, dormant without an API key
	if cfg.Advisor.APIKey == "" {
		cfg.Advisor.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	var (
		advisorClient  *advisor.Client
		advisorTracker *advisor.Tracker
	)
	if cfg.Advisor.Enabled && cfg.Advisor.APIKey != "" {
		model := cfg.Advisor.Model
		if model == "" {
			model = advisor.DefaultModel
		}
		advisorTracker = advisor.NewTracker(model)
		advisorClient = advisor.New(advisor.Config{
			APIKey:  cfg.Advisor.APIKey,
			Model:   cfg.Advisor.Model,
			BaseURL: cfg.Advisor.BaseURL,
			Timeout: time.Duration(cfg.Advisor.TimeoutSeconds) * time.Second,
		}, advisorTracker, log.Logger)
		log.Info().Str("model", model).Msg("advisor enabled")
	} else {
		log.Info().Msg("advisor disabled, deterministic fallbacks active")
	}

	// Typed-nil guard: the fallback tiers check their interface
	// against nil, so only assign when a client exists.
	var (
		parserAdvisor   query.Advisor
		grouperAdvisor  grouper.Advisor
		selectorAdvisor selector.Advisor
		optimizer       orchestrator.Optimizer
	)
	if advisorClient != nil {
		parserAdvisor = advisorClient
		grouperAdvisor = advisorClient
		selectorAdvisor = advisorClient
		optimizer = advisorClient
	}

	// Metadata catalog client
	appVersion := cfg.Metadata.AppVersion
	if appVersion == "" {
		appVersion = Version
	}
	metadataClient := metadata.NewClient(metadata.Config{
		BaseURL:    cfg.Metadata.BaseURL,
		AppName:    cfg.Metadata.AppName,
		AppVersion: appVersion,
		Contact:    cfg.Metadata.Contact,
		Timeout:    time.Duration(cfg.Metadata.TimeoutSeconds) * time.Second,
	}, log.Logger)

	// Source adapters from the active profile
	substitution := profile.EnvContext(map[string]string{})
	if substitution["JACKETT_URL"] == "" && config.EmbeddedJackettURL != "" {
		substitution["JACKETT_URL"] = config.EmbeddedJackettURL
	}
	if substitution["JACKETT_API_KEY"] == "" && config.EmbeddedJackettKey != "" {
		substitution["JACKETT_API_KEY"] = config.EmbeddedJackettKey
	}
	if cfg.Resolver.BaseURL != "" {
		substitution["RESOLVER_URL"] = cfg.Resolver.BaseURL
	}

	factory := profile.NewFactory(log.Logger)
	adapters, activeProfile := factory.BuildFromFile(cfg.Profile.Path, cfg.Profile.Name, substitution)
	if len(adapters) == 0 {
		log.Fatal().Str("profile", activeProfile).Msg("active profile has no enabled adapters")
	}
	log.Info().
		Str("profile", activeProfile).
		Int("adapters", len(adapters)).
		Msg("source profile loaded")

	profileNames := []string{activeProfile}
	if doc, err := profile.LoadDocument(cfg.Profile.Path); err == nil {
		profileNames = doc.Names()
	}

	// Federated engine
	health := adapter.NewHealthTracker(log.Logger)
	engineService := engine.NewService(adapters, health, log.Logger)

	// Standalone resolver so POST /resolve works even when the active
	// profile carries no stream adapter.
	var fallbackResolver adapter.StreamResolver
	if _, ok := engineService.Resolver(); !ok {
		fallbackResolver = ytmusic.New(ytmusic.Config{
			BaseURL: cfg.Resolver.BaseURL,
			Timeout: time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second,
		}, log.Logger)
	}

	// Search surfaces
	pipeline := orchestrator.NewPipeline(engineService, orchestrator.Defaults{
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		MinSeeders: cfg.Search.MinSeeders,
		MaxResults: cfg.Search.MaxResults,
	}, log.Logger)
	workflow := orchestrator.New(orchestrator.Deps{
		Parser:         query.NewParser(parserAdvisor, log.Logger),
		Metadata:       metadataClient,
		Grouper:        grouper.New(grouperAdvisor, log.Logger),
		Selector:       selector.New(selectorAdvisor, log.Logger),
		Engine:         engineService,
		Optimizer:      optimizer,
		AdvisorEnabled: advisorClient != nil,
		Logger:         log.Logger,
	})

	// Background maintenance
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if historyService != nil {
		if err := tasks.RegisterHistoryCleanupTask(sched, historyService, cfg.History.RetentionDays); err != nil {
			log.Fatal().Err(err).Msg("failed to register history cleanup task")
		}
	}
	if err := tasks.RegisterAdapterHealthTask(sched, engineService, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register adapter health task")
	}
	sched.Start()

	// HTTP server
	server := api.NewServer(api.Deps{
		Config:       cfg,
		Version:      Version,
		Pipeline:     pipeline,
		Workflow:     workflow,
		Engine:       engineService,
		Resolver:     fallbackResolver,
		History:      historyService,
		Scheduler:    sched,
		Tracker:      advisorTracker,
		Registry:     registry,
		Stream:       websocket.NewHandler(pipeline, historyService, log.Logger),
		ProfileName:  activeProfile,
		ProfileNames: profileNames,
	}, log.Logger)

	go func() {
		addr := cfg.Server.Address()
		if err := server.Start(addr); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	if advisorTracker != nil {
		log.Info().Msg(advisorTracker.String())
	}
	log.Info().Msg("server stopped")
}
