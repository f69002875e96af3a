package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examstats/internal/gateway"
	"github.com/pavelanni/examstats/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examstats",
		Short:        "Study session tracker and statistics for exam question practice",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, statsCmd(), exportCmd(), importCmd(), migrateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examstats --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the storage and logging flags every command
// shares.
func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "examstats.db", "SQLite database path")
	f.String("backend", "sqlite", "History store backend (sqlite, redis)")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL when --backend=redis")
	f.String("history-key", gateway.DefaultKey, "Key that holds the encoded history")
	f.Int("quota-bytes", gateway.DefaultQuota, "Maximum encoded history size (0 = unlimited)")
	f.StringP("lang", "l", "en", "Language for reports and messages (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examstats")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examstats")
	v.AddConfigPath("/etc/examstats")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// kvStore is a host store the gateway can use and the command must close.
type kvStore interface {
	gateway.KV
	Close() error
}

// openGateway opens the configured backend and wraps it in a gateway.
func openGateway(ctx context.Context, v *viper.Viper) (*gateway.Gateway, func() error, error) {
	var kv kvStore
	switch backend := strings.ToLower(v.GetString("backend")); backend {
	case "", "sqlite":
		s, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		kv = s
	case "redis":
		r, err := store.NewRedis(ctx, v.GetString("redis-url"))
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		kv = r
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
	g := gateway.New(kv,
		gateway.WithKey(v.GetString("history-key")),
		gateway.WithQuota(v.GetInt("quota-bytes")),
	)
	return g, kv.Close, nil
}
