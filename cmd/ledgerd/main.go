// cmd/ledgerd/main.go
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"equipledger/internal/audit"
	"equipledger/internal/config"
	"equipledger/internal/identity"
	"equipledger/internal/ledger"
	"equipledger/internal/registry"
	"equipledger/internal/snapshot"
	"equipledger/internal/stats"
	"equipledger/internal/storage"
	"equipledger/internal/telemetry"
	"equipledger/pkg/logger"
)

func main() {
	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "equipledger")
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	engine, err := buildEngine(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage engine", zap.Error(err))
	}

	trail := audit.NewTrail(engine, nil)
	ids := identity.NewService(trail, identity.Options{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutPeriod:    cfg.Auth.LockoutPeriod,
	}, logger.Named(log, "identity"), nil)

	equipment := registry.NewStore(nil)
	svc := ledger.NewService(equipment, ids, trail, ledger.Config{
		LoanPeriod:      cfg.Ledger.LoanPeriod,
		DefaultMaxLoans: cfg.Ledger.DefaultMaxLoans,
	}, logger.Named(log, "ledger"), nil)

	coordinator := snapshot.NewCoordinator(svc, ids, engine, cfg.Snapshot.WriteTimeout,
		logger.Named(log, "snapshot"), nil)
	facade := stats.NewFacade(svc, ids, trail, nil)

	bootstrapAdmin(ctx, ids, log)

	if cfg.Snapshot.Schedule != "" {
		scheduler := snapshot.NewScheduler(coordinator, cfg.Snapshot.Schedule, logger.Named(log, "snapshot"))
		if err := scheduler.Start(); err != nil {
			log.Fatal("failed to start snapshot scheduler", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	router := buildRouter(svc, ids, trail, coordinator, facade)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("ledger daemon listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildEngine(cfg *config.Config, log *zap.Logger) (storage.Engine, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		log.Info("using postgres storage backend")
		return storage.NewPostgres(db)
	case "memory":
		log.Warn("using in-memory storage backend, state will not survive restarts")
		return storage.NewMemory(), nil
	default:
		log.Info("using filesystem storage backend", zap.String("dir", cfg.Storage.Dir))
		return storage.NewFilesystem(cfg.Storage.Dir)
	}
}

// bootstrapAdmin creates the initial administrator account when the store is
// empty and BOOTSTRAP_ADMIN_USERNAME / BOOTSTRAP_ADMIN_PASSWORD are set.
func bootstrapAdmin(ctx context.Context, ids identity.Service, log *zap.Logger) {
	username := os.Getenv("BOOTSTRAP_ADMIN_USERNAME")
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return
	}
	if len(ids.ListUsers(ctx)) > 0 {
		return
	}

	user, err := ids.CreateUser(ctx, uuid.Nil, username, "Initial Administrator", password, identity.RoleAdministrator)
	if err != nil {
		log.Error("failed to bootstrap administrator", zap.Error(err))
		return
	}
	log.Info("bootstrapped administrator account", zap.String("id", user.ID.String()))
}

func buildRouter(svc ledger.Service, ids identity.Service, trail *audit.Trail, coordinator *snapshot.Coordinator, facade *stats.Facade) http.Handler {
	ledgerHandler := ledger.NewHandler(svc, nil)
	identityHandler := identity.NewHandler(ids)
	auditHandler := audit.NewHandler(trail)
	snapshotHandler := snapshot.NewHandler(coordinator)
	statsHandler := stats.NewHandler(facade)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/equipment", func(r chi.Router) {
			r.Post("/", ledgerHandler.HandleRegisterEquipment)
			r.Get("/", ledgerHandler.HandleListEquipment)
			r.Get("/{id}", ledgerHandler.HandleGetEquipment)
			r.Get("/code/{code}", ledgerHandler.HandleGetEquipmentByCode)
			r.Post("/{id}/transition", ledgerHandler.HandleTransitionEquipment)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", ledgerHandler.HandleIssue)
			r.Get("/", ledgerHandler.HandleListLoans)
			r.Get("/overdue", ledgerHandler.HandleOverdueLoans)
			r.Get("/{id}", ledgerHandler.HandleGetLoan)
			r.Post("/{id}/return", ledgerHandler.HandleReturn)
		})
		r.Get("/supervisors/{id}/loans", ledgerHandler.HandleOpenLoansFor)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", identityHandler.HandleCreateUser)
			r.Get("/", identityHandler.HandleListUsers)
			r.Post("/{id}/role", identityHandler.HandleChangeRole)
			r.Post("/{id}/deactivate", identityHandler.HandleDeactivate)
			r.Post("/{id}/loan-limit", identityHandler.HandleSetLoanLimit)
		})
		r.Post("/authenticate", identityHandler.HandleAuthenticate)

		r.Get("/audit", auditHandler.HandleQuery)

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", snapshotHandler.HandleCreate)
			r.Post("/{name}/restore", snapshotHandler.HandleRestore)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/equipment", statsHandler.HandleEquipment)
			r.Get("/loans", statsHandler.HandleLoans)
			r.Get("/supervisors", statsHandler.HandleSupervisors)
			r.Get("/activity", statsHandler.HandleActivity)
		})
	})

	return r
}
