package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/templui/driveindex/internal/app"
	"github.com/templui/driveindex/internal/config"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "driveindex",
		Short:        "Drive metadata index and query engine",
		SilenceUsage: true,
	}

	root.AddCommand(MigrateCmd())
	root.AddCommand(StatsCmd())
	root.AddCommand(GetCmd())
	root.AddCommand(TouchCmd())
	root.AddCommand(QueryCmd())
	root.AddCommand(ModifiedCmd())
	root.AddCommand(WatchCmd())
	root.AddCommand(ExportCmd())
	root.AddCommand(ImportCmd())
	return root
}

// loadConfig reads the environment and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger.Init(logger.Options{
		Development: cfg.IsDevelopment(),
		SentryDSN:   cfg.SentryDSN,
	})
	return cfg, nil
}

// runApp builds the app, serves /metrics when METRICS_ADDR is set and runs
// fn with the command's context.
func runApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush()

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return err
	}
	defer func() {
		closeErr := a.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	err = fn(cmd.Context(), a)
	if err != nil {
		slog.Debug("command failed", "command", cmd.Name(), "error", err)
	}
	return err
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server starting", "addr", addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDrive(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid drive id %q: %w", arg, err)
	}
	return id, nil
}

func parseFile(arg string) (fileid.ID, error) {
	id, err := fileid.Parse(arg)
	if err != nil {
		return fileid.Nil, fmt.Errorf("invalid file id %q: %w", arg, err)
	}
	return id, nil
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
