package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/logger"
	"github.com/fadilmartias/bioreport-worker/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every table the worker maps.
func Models() []any {
	return []any{&model.PdfJob{}, &model.UploadedDocument{}}
}

// Connect opens the postgres pool and tunes it from cfg.
func Connect(cfg config.DBConfig, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Gorm(log),
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	pgDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get database instance: %w", err)
	}
	pgDB.SetMaxOpenConns(cfg.MaxOpenConns)
	pgDB.SetMaxIdleConns(cfg.MaxIdleConns)
	pgDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates the mapped tables. Production schemas belong to the
// upload service; this is for local development and tests.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// VerifySchema fails when any mapped table or column is absent, naming all of them.
func VerifySchema(db *gorm.DB) error {
	migrator := db.Migrator()
	var missing []string
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return fmt.Errorf("parse model %T: %w", m, err)
		}
		table := stmt.Schema.Table
		if !migrator.HasTable(m) {
			missing = append(missing, table)
			continue
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if !migrator.HasColumn(m, field.DBName) {
				missing = append(missing, table+"."+field.DBName)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema check failed, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
