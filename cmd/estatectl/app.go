package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
)

const envPrefix = "ESTATECORE"

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "estatectl")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "estatectl",
		Short:         "estatectl dispatches, inspects and reverses estate business transactions",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Save a property company from a YAML payload into ./estatecore.db
  estatectl dispatch save.property.info property.yaml

  # Undo it again
  estatectl recover <txn-id>

  # Postgres storage, S3 archive and shared redis locks
  ESTATECORE_STORAGE_DRIVER=postgres ESTATECORE_POSTGRES_DSN=postgres://... \
  ESTATECORE_BLOB_DRIVER=s3 ESTATECORE_BLOB_S3_BUCKET=estate-archive \
  estatectl --redis-url redis://localhost:6379/0 dispatch update.shop.info shop.json
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfigFile(v)
			return err
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to YAML config file")
	persistent.String("storage-driver", "sqlite", "persistent store (memory, sqlite, postgres)")
	persistent.String("sqlite-path", "estatecore.db", "sqlite database file")
	persistent.String("postgres-dsn", "", "postgres DSN when storage-driver=postgres")
	persistent.String("blob-driver", "fs", "transaction archive backend (fs, s3, memory, none)")
	persistent.String("blob-fs-root", "archive", "archive root directory when blob-driver=fs")
	persistent.String("blob-s3-bucket", "", "archive bucket when blob-driver=s3")
	persistent.String("blob-s3-region", "", "archive bucket region")
	persistent.String("blob-s3-endpoint", "", "S3-compatible endpoint override (e.g. MinIO)")
	persistent.Bool("blob-s3-path-style", false, "use path-style S3 addressing")
	persistent.String("lock-mode", "wait", "behaviour on entity lock contention (wait, fail)")
	persistent.Duration("lock-ttl", defaultLockTTL, "redis lock expiry")
	persistent.String("redis-url", "", "redis URL for entity locks shared across processes (empty keeps locks in-process)")
	persistent.String("metrics-file", "", "write Prometheus metrics in text format to this file on exit")
	persistent.String("audit-log", "", "append one JSON line per dispatch and recovery to this file")
	persistent.StringP("output", "o", "text", "output format (text, json)")
	persistent.String("log-level", "", "override the log level (trace, debug, info, warn, error)")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	persistent.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err)
		}
	})

	app := &cliApp{v: v, logger: baseLogger}
	cmd.AddCommand(
		newDispatchCommand(app),
		newRecoverCommand(app),
		newShowCommand(app),
		newLiveCommand(app),
		newArchiveCommand(app),
		newModulesCommand(app),
		newVersionCommand(),
	)
	return cmd
}

// cliApp is shared by the subcommands; each invocation opens its own runtime.
type cliApp struct {
	v      *viper.Viper
	logger pslog.Logger
}

func (a *cliApp) open(ctx context.Context) (*runtime, error) {
	cfg, err := bindConfig(a.v)
	if err != nil {
		return nil, err
	}
	logger := a.logger
	if cfg.LogLevel != "" {
		level, ok := pslog.ParseLevel(cfg.LogLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}
		logger = logger.LogLevel(level)
	}
	return openRuntime(ctx, cfg, logger)
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
