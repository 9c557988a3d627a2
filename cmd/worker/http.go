package main

import (
	"context"
	"errors"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/database"
	"github.com/fadilmartias/bioreport-worker/internal/domain/fiber/handler"
	"github.com/fadilmartias/bioreport-worker/internal/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newStatusApp(cfg config.AppConfig, db *gorm.DB) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}
			return ctx.Status(code).JSON(fiber.Map{"success": false, "message": message})
		},
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !cfg.IsProduction(),
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(helmet.New())
	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(c *fiber.Ctx) bool {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			return database.Ping(ctx, db) == nil
		},
	}))

	handler.NewJobHandler(repository.NewJobRepository(db), !cfg.IsProduction()).RegisterRoutes(app)
	return app
}

// serveStatus runs the status endpoints until ctx is done.
func serveStatus(ctx context.Context, cfg config.AppConfig, db *gorm.DB, log logrus.FieldLogger) error {
	app := newStatusApp(cfg, db)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http_listening")
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}
