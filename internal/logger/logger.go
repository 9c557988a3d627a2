package logger

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a JSON logger writing to out. Unknown levels fall back to info.
func New(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetLevel(logrus.InfoLevel)

	if level == "" {
		return log
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.WithField("level", level).Warn("invalid log level, defaulting to info")
		return log
	}
	log.SetLevel(parsed)
	return log
}

// Gorm routes gorm's SQL logging through log. Record-not-found is expected
// on an empty queue and is not reported.
func Gorm(log *logrus.Logger) gormlogger.Interface {
	level := gormlogger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(log, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
