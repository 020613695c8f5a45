package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/api"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := api.LoadConfig()
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.ListenAddr = v
		}
		if v, _ := cmd.Flags().GetString("db"); v != "" {
			cfg.DBPath = v
		}

		setupLogger(cfg)

		store, err := syncdb.Open(cfg.DBPath)
		if err != nil {
			slog.Error("open sync db", "err", err)
			return err
		}
		defer store.Close()

		srv, err := api.NewServer(cfg, store)
		if err != nil {
			slog.Error("create server", "err", err)
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(); err != nil {
			slog.Error("start server", "err", err)
			return err
		}
		slog.Info("server started", "addr", cfg.ListenAddr)

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
			return err
		}
		return nil
	},
}

// setupLogger configures the default slog logger from config. When a log
// file is set, output goes through a size-rotated file instead of stderr.
func setupLogger(cfg api.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides SYNC_LISTEN_ADDR)")
	serveCmd.Flags().String("db", "", "path to sync.db (overrides SYNC_DB_PATH)")
}
