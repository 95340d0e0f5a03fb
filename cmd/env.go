package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/agency-crm/internal/auth"
	"github.com/sells-group/agency-crm/internal/backup"
	"github.com/sells-group/agency-crm/internal/dashboard"
	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/export"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/store"
)

// env wires the service graph for one command invocation.
type env struct {
	Store     store.Store
	Auth      *auth.Service
	Deals     *deal.Engine
	Backups   *backup.Service
	Importer  *importer.Orchestrator
	Dashboard *dashboard.Service
	Exporter  *export.Service

	// Gate serializes import and restore.
	Gate *semaphore.Weighted
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	gate := semaphore.NewWeighted(1)
	authSvc := auth.NewService(st, cfg.Auth, cfg.Seed)
	engine := deal.NewEngine(st, cfg.Deal.RequireLostReason)
	backups := backup.NewService(cfg.Backup, cfg.Store)

	return &env{
		Store:     st,
		Auth:      authSvc,
		Deals:     engine,
		Backups:   backups,
		Importer:  importer.NewOrchestrator(st, engine, backups, authSvc, gate),
		Dashboard: dashboard.NewService(st),
		Exporter:  export.NewService(st),
		Gate:      gate,
	}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
