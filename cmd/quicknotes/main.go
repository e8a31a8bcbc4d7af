package main

import (
	"fmt"
	"os"
	"quicknotes/internal/config"
	"quicknotes/internal/logging"
	"quicknotes/internal/metrics"
	"quicknotes/internal/notify"
	"quicknotes/internal/service"
	"quicknotes/internal/storage"
	"quicknotes/internal/storage/file"
	"quicknotes/internal/storage/memory"
	"quicknotes/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dbPath     string
	backend    string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		n := notify.FromError(err)
		notify.NewWriterNotifier(os.Stderr).Notify(n)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "quicknotes",
		Short:         "Save, tag and search text snippets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path for the sqlite backend")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend: sqlite, file or memory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(favoriteCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd
}

// app holds everything a command needs
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	kv       storage.KV
	notes    *service.NoteService
	registry *prometheus.Registry
	notifier *notify.Multi
}

// loadConfig reads the configuration and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp wires configuration, logging, storage and the note service.
// Commands other than serve log at warn unless a level was asked for.
func openApp(cmd *cobra.Command, serving bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if !serving && logLevel == "" && os.Getenv("QUICKNOTES_LOG_LEVEL") == "" {
		level = "warn"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	settings := cfg.StorageSettings()
	kv, err := openKV(settings)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	store := storage.NewBlobStore(kv, settings, logger)
	notes := service.New(store, logger, service.WithMetrics(metrics.New(registry)))

	notifier := &notify.Multi{}
	if serving {
		notifier.Add(notify.NewLogNotifier(logger))
	} else {
		notifier.Add(notify.NewWriterNotifier(cmd.OutOrStdout()))
	}

	logger.Debug("Opened storage",
		zap.String("backend", settings.Backend),
		zap.Strings("config", cfg.LoadedFrom))

	return &app{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		notes:    notes,
		registry: registry,
		notifier: notifier,
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("Error closing storage", zap.Error(err))
	}
	a.logger.Sync()
}

// openKV creates the storage substrate named by settings.Backend
func openKV(settings storage.Config) (storage.KV, error) {
	switch settings.Backend {
	case storage.BackendSQLite, "":
		s, err := sqlite.New(settings)
		if err != nil {
			return nil, err
		}
		return s, nil
	case storage.BackendFile:
		s, err := file.New(settings)
		if err != nil {
			return nil, err
		}
		return s, nil
	case storage.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", settings.Backend)
}
