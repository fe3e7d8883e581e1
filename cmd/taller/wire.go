package main

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taller-erp/taller/internal/app"
	"github.com/taller-erp/taller/internal/audit"
	audithttp "github.com/taller-erp/taller/internal/audit/http"
	"github.com/taller-erp/taller/internal/auth"
	"github.com/taller-erp/taller/internal/observability"
	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/roles"
	"github.com/taller-erp/taller/internal/shared"
	"github.com/taller-erp/taller/internal/users"
	"github.com/taller-erp/taller/jobs"
)

// services holds the domain services shared by the server and the CLI.
type services struct {
	auditLog  *audit.Logger
	audit     *audit.Service
	catalog   *rbac.Catalog
	resolver  *rbac.Resolver
	guard     *rbac.Guard
	rbac      *rbac.Service
	usersRepo *users.Repository
	users     *users.Service
	jobs      *jobs.Client
}

func buildServices(cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool, metrics *observability.Metrics) (*services, error) {
	auditRepo := audit.NewRepository(pool)
	auditLog := audit.NewLogger(auditRepo, logger)

	rbacRepo := rbac.NewRepository(pool)
	guard := rbac.NewGuard(rbacRepo, auditLog, metrics, logger)
	rbacService := rbac.NewService(rbacRepo, guard, auditLog, logger)

	usersRepo := users.NewRepository(pool)
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return nil, err
	}
	if cfg.NotifyPermissionChanges {
		rbacService.SetNotifier(users.NewPermissionMailNotifier(usersRepo, jobClient))
	}

	return &services{
		auditLog:  auditLog,
		audit:     audit.NewService(auditRepo),
		catalog:   rbac.NewCatalog(rbacRepo, auditLog, logger),
		resolver:  rbac.NewResolver(rbacRepo),
		guard:     guard,
		rbac:      rbacService,
		usersRepo: usersRepo,
		users:     users.NewService(usersRepo, auditLog, logger),
		jobs:      jobClient,
	}, nil
}

func (s *services) close() error {
	if s == nil || s.jobs == nil {
		return nil
	}
	return s.jobs.Close()
}

func buildRouter(cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool, svc *services, sessions *shared.SessionManager, inspector *asynq.Inspector, metrics *observability.Metrics) *app.RouterParams {
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	mw := rbac.Middleware{Guard: svc.guard, Logger: logger}

	authService := auth.NewService(auth.NewRepository(pool), svc.resolver, svc.auditLog, logger)
	rolesService := roles.NewService(svc.rbac, roles.NewRepository(pool))

	return &app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, authService, sessions, csrf),
		RolesHandler:       roles.NewHandler(logger, rolesService, mw),
		UsersHandler:       users.NewHandler(logger, svc.users, mw),
		PermissionsHandler: rbac.NewHandler(svc.catalog, svc.rbac, svc.resolver, mw),
		AuditHandler:       audithttp.NewHandler(logger, svc.audit, svc.guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Database:           pool,
		Metrics:            metrics,
	}
}
