package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/chatqueue/internal/api"
	"github.com/ashureev/chatqueue/internal/assign"
	"github.com/ashureev/chatqueue/internal/chat"
	"github.com/ashureev/chatqueue/internal/clock"
	"github.com/ashureev/chatqueue/internal/config"
	"github.com/ashureev/chatqueue/internal/health"
	"github.com/ashureev/chatqueue/internal/monitor"
	"github.com/ashureev/chatqueue/internal/notify"
	"github.com/ashureev/chatqueue/internal/roster"
	"github.com/ashureev/chatqueue/internal/shift"
	"github.com/ashureev/chatqueue/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat queue HTTP server and monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

// stores bundles the selected backend.
type stores struct {
	sessions store.SessionStore
	agents   store.AgentStore
	db       api.Pinger
	closer   io.Closer
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreBackend == config.BackendSQLite {
		db, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &stores{sessions: db.Sessions(), agents: db.Agents(), db: db, closer: db}, nil
	}
	return &stores{sessions: store.NewMemorySessionStore(), agents: store.NewMemoryAgentStore()}, nil
}

func serve(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.LogLevel))

	slog.Info("Starting chat queue", "port", cfg.Port, "store", cfg.StoreBackend, "dev", cfg.IsDevelopment())

	r, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return err
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	if st.closer != nil {
		defer func() {
			if closeErr := st.closer.Close(); closeErr != nil {
				slog.Error("Failed to close store", "error", closeErr)
			}
		}()
	}
	if st.db != nil {
		if err := st.db.Ping(ctx); err != nil {
			return fmt.Errorf("database health check: %w", err)
		}
		slog.Info("Database connected", "path", cfg.DBPath)
	}
	if err := st.agents.Seed(ctx, r.SeedAgents()); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}
	slog.Info("Roster loaded", "agents", len(r.Agents), "teams", len(r.Teams), "overflow", len(r.Overflow.Members))

	clk := clock.Real{}
	policy := shift.NewPolicy(r, st.agents, st.sessions, clk, cfg.OverflowQueueBuffer)
	policy.CheckOverflowBuffer()

	assigner := assign.NewService(st.agents)
	chatSvc := chat.NewService(st.sessions, policy)
	hub := notify.NewHub()
	reporter := health.NewReporter()

	mon := monitor.New(monitor.Config{
		Interval:        cfg.Monitor.Interval,
		LivenessWindow:  cfg.Monitor.LivenessWindow,
		ReleaseOnExpiry: cfg.Monitor.ReleaseOnExpiry,
	}, policy, st.sessions, assigner, clk,
		monitor.WithNotifier(hub),
		monitor.WithHealth(reporter),
	)

	router := api.NewRouter(api.RouterConfig{
		Chat:        chatSvc,
		Health:      api.NewHealthHandler(st.db, reporter),
		WebSocket:   notify.NewHandler(hub, chatSvc, cfg.CORSOrigins),
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.IsDevelopment(),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	errc := make(chan error, 2)
	if cfg.GRPCPort != "" {
		go func() {
			if err := reporter.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
				errc <- err
			}
		}()
	}
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		slog.Error("Server failed", "error", runErr)
	}
	cancel()

	slog.Info("Shutting down gracefully...")
	reporter.Shutdown()
	hub.CloseAll()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	slog.Info("Server stopped successfully")
	return nil
}
