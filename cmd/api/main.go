// @title        Expense Splitter API
// @version      1.0
// @description  Shared expense ledger: groups, expenses, settlements and balances.
// @host         localhost:8080
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/fkhayef/expensesplitter/docs"
	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/internal/balance"
	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/config"
	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/expense"
	expensesplit "github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/group"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/metrics"
	"github.com/fkhayef/expensesplitter/internal/settlement"
	"github.com/fkhayef/expensesplitter/internal/user"
	"github.com/fkhayef/expensesplitter/pkg/logging"
	mw "github.com/fkhayef/expensesplitter/pkg/middleware"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	if envErr != nil {
		slog.Info("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "driver", cfg.DatabaseDriver)

	m := metrics.New()
	hub := changefeed.NewHub()

	// Audit trail, written in the background
	auditLogger := audit.NewSQLLogger(db)
	auditWorker := audit.NewWorker(auditLogger, cfg.AuditBuffer, m)
	auditWorker.Start()
	defer auditWorker.Shutdown()

	// Split Strategy Factory (Factory Pattern)
	splitFactory := expensesplit.NewSplitStrategyFactory()

	// User feature
	userRepo := user.NewRepository(db)
	userService := user.NewService(userRepo, auditWorker)
	userHandler := user.NewHandler(userService)

	// Group feature
	groupService := group.NewService(db, userRepo, hub, auditWorker, cfg.DefaultCurrency)
	groupHandler := group.NewHandler(groupService)

	// Expense feature (with split factory injected)
	expenseService := expense.NewService(db, groupService.Repository(), splitFactory, hub, auditWorker, m)
	expenseHandler := expense.NewHandler(expenseService)

	// Settlement feature
	settlementService := settlement.NewService(db, groupService.Repository(), expenseService.Repository(), hub, auditWorker, m)
	settlementHandler := settlement.NewHandler(settlementService)

	// Balance feature
	var engineOpts []ledger.Option
	if cfg.IncludeSettledInBalance {
		engineOpts = append(engineOpts, ledger.IncludeSettled())
	}
	engine := ledger.NewEngine(splitFactory, engineOpts...)
	loader := balance.NewLoader(db, groupService.Repository(), expenseService.Repository(), settlementService.Repository())
	balanceService := balance.NewService(loader, engine, m)
	balanceHandler := balance.NewHandler(balanceService, hub, m, cfg.StreamDebounce)

	auditHandler := audit.NewHandler(auditLogger)

	// Purge soft-deleted expenses past retention
	sweeper := expense.NewSweeper(expenseService.Repository(), cfg.Retention(), cfg.RetentionInterval, m)
	go sweeper.Run(ctx)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(mw.MemberMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Mount feature routers
		r.Mount("/users", userHandler.Routes())
		r.Mount("/groups", groupHandler.Routes())
		r.Mount("/expenses", expenseHandler.Routes())
		r.Mount("/settlements", settlementHandler.Routes())
		r.Mount("/balances", balanceHandler.Routes())
		r.Mount("/audit", auditHandler.Routes())
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	srv := newServer(ctx, ":"+port, r)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed to start", "error", err)
		os.Exit(1)
	}
	// Handlers may still be finishing; the audit worker and database stay up until they do
	<-shutdownDone
}

// newServer builds the HTTP server. Every request context derives from ctx,
// so cancelling it ends long-lived balance streams and lets Shutdown finish.
func newServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}
