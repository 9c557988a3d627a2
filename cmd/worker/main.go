package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/database"
	"github.com/fadilmartias/bioreport-worker/internal/logger"
	"github.com/fadilmartias/bioreport-worker/internal/repository"
	"github.com/fadilmartias/bioreport-worker/internal/service"
	"github.com/fadilmartias/bioreport-worker/internal/storage"
	"github.com/fadilmartias/bioreport-worker/internal/usecase"
	"github.com/fadilmartias/bioreport-worker/internal/util"
	"github.com/fadilmartias/bioreport-worker/internal/worker"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bioreport-worker",
		Short:         "Processes uploaded lab report PDFs from the pdf_jobs queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(func(cfg config.Config, log *logrus.Logger, db *gorm.DB) error {
				return runWorker(cmd.Context(), cfg, log, db)
			})
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the worker tables (development only)",
		RunE: func(*cobra.Command, []string) error {
			return withRuntime(func(_ config.Config, log *logrus.Logger, db *gorm.DB) error {
				if err := database.AutoMigrate(db); err != nil {
					return err
				}
				log.Info("migration_done")
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-schema",
		Short: "Verify the database has every table and column the worker maps",
		RunE: func(*cobra.Command, []string) error {
			return withRuntime(func(_ config.Config, log *logrus.Logger, db *gorm.DB) error {
				if err := database.VerifySchema(db); err != nil {
					return err
				}
				log.Info("schema_ok")
				return nil
			})
		},
	})
	return root
}

// withRuntime loads configuration, builds the logger and opens the database
// around fn. Startup failures are logged and returned.
func withRuntime(fn func(config.Config, *logrus.Logger, *gorm.DB) error) error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	log := logger.New(cfg.App.LogLevel, os.Stdout)
	if envErr != nil {
		log.WithError(envErr).Debug("no .env file loaded")
	}

	db, err := database.Connect(cfg.DB, log)
	if err != nil {
		log.WithError(err).Error("startup_failed")
		return err
	}
	defer database.Close(db)

	if err := fn(cfg, log, db); err != nil {
		log.WithError(err).Error("command_failed")
		return err
	}
	return nil
}

func runWorker(parent context.Context, cfg config.Config, log *logrus.Logger, db *gorm.DB) error {
	if err := database.VerifySchema(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := storage.NewPathResolver(cfg.Storage.BasePath)
	if err != nil {
		return err
	}
	analyzer, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		return err
	}

	runner := usecase.NewPipelineRunner(
		cfg.Worker,
		repository.NewJobRepository(db),
		repository.NewResultRepository(db),
		resolver,
		util.NewPDFExtractor(cfg.Storage.OCRFallback, log),
		analyzer,
		log,
	)
	loop := worker.NewPollLoop(runner, cfg.Worker.PollInterval(), log.WithField("app", cfg.App.Name))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if cfg.App.HTTPAddr != "" {
		g.Go(func() error {
			return serveStatus(gctx, cfg.App, db, log)
		})
	}
	return g.Wait()
}

func newAnalyzer(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (usecase.Analyzer, error) {
	switch cfg.Analysis.Provider {
	case config.ProviderGemini:
		return service.NewGeminiAnalyzer(ctx, cfg.Analysis, cfg.Gemini, log)
	case config.ProviderOpenRouter:
		return service.NewOpenRouterAnalyzer(cfg.Analysis, cfg.OpenRouter, log)
	}
	return nil, errors.New("unsupported analysis provider " + cfg.Analysis.Provider)
}
