// Package logger holds the process-wide zap logger.
package logger

import (
	"strings"

	"github.com/mathemusician/church-volunteers/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log stays a no-op until Init; services take their own *zap.Logger.
var Log = zap.NewNop()

// Init replaces Log according to the app section.
func Init(app config.AppConfig) {
	l, err := New(app.LogLevel, app.Development())
	if err != nil {
		panic(err)
	}
	Log = l.With(zap.String("env", app.Env))
}

// New builds a JSON logger, or a console logger in development.
// Unknown levels fall back to info.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	return cfg.Build()
}
