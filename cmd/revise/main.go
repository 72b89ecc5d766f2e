package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/srslab/revise/internal/config"
	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/scheduler"
	"github.com/srslab/revise/internal/session"
	"github.com/srslab/revise/internal/stats"
	"github.com/srslab/revise/internal/store"
	"github.com/srslab/revise/internal/syncer"
	"github.com/srslab/revise/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("revise", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	addSource := flags.String("add-source", "", "Register a deck source (directory or git URL) and exit")
	project := flags.String("project", "default", "Project the new source belongs to")
	runSync := flags.Bool("sync", false, "Reconcile all deck sources before serving")
	serve := flags.Bool("serve", true, "Start the HTTP API")
	flags.String("server.addr", "", "HTTP listen address")
	flags.String("database.path", "", "Path to the SQLite database file")
	flags.Int("session.limit", 0, "Default number of cards per study session")
	flags.String("session.policy", "", "Default scheduling policy (sm2 or leitner)")
	flags.String("sync.reposdir", "", "Directory for git deck checkouts")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	ctx := context.Background()
	sync := syncer.New(db, cfg.Sync.ReposDir)

	if *addSource != "" {
		if err := db.UpsertProject(ctx, domain.Project{ID: *project, Name: *project}); err != nil {
			log.Fatalf("Failed to ensure project: %v", err)
		}
		id, err := db.InsertSource(ctx, *project, *addSource, syncer.SourceType(*addSource))
		if err != nil {
			log.Fatalf("Failed to add source: %v", err)
		}
		slog.Info("source registered", "id", id, "path", *addSource, "project", *project)
	}

	if *runSync {
		if err := sync.Run(ctx); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
	}

	if !*serve {
		return
	}

	params := scheduler.Params{
		MinEase:             cfg.Scheduler.MinEase,
		MasteryReps:         cfg.Scheduler.MasteryReps,
		MasteryIntervalDays: cfg.Scheduler.MasteryInterval,
		MaxIntervalDays:     cfg.Scheduler.MaxInterval,
		LeitnerMaxBox:       cfg.Scheduler.LeitnerMaxBox,
	}
	manager := session.NewManager(db, db, params)
	manager.Limit = cfg.Session.Limit
	manager.Policy = cfg.Session.Policy
	aggregator := stats.New(db)
	server := web.NewServer(db, manager, aggregator, sync)

	slog.Info("listening", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, server); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
