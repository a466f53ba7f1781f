package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/cliparse"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/election"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/middleware"
	"github.com/danielhkuo/elvox/router"
	"github.com/danielhkuo/elvox/scheduler"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	var err error

	if err := cliparse.LoadDotEnv(); err != nil {
		slog.Error("Error loading .env", "error", err)
		os.Exit(1)
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	logger := slog.Default()
	hub := events.NewHub()
	notifier := events.NewNotifier(dbConn, logger)
	svc := election.NewService(dbConn,
		auth.NewSigner(cfg.VotingTokenSecret),
		events.NewAuditLog(hub),
		notifier,
		hub,
		election.WithLogger(logger),
	)

	mux := router.NewRouter(router.Deps{
		Service:  svc,
		Hub:      hub,
		Notifier: notifier,
		Sessions: middleware.NewSessions(dbConn, auth.NewSigner(cfg.SessionTokenSecret)),
	})

	server := http.Server{
		Handler: middleware.CORS(cfg.CORSOrigin)(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.New(svc, cfg.TickInterval, logger).Run(ctx)
	})

	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Wait for Ctrl-C signal or a failed sibling
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			// Event streams stay open until their clients leave.
			return server.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server closed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server closed")
}
