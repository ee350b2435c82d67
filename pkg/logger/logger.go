package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

// init gives packages a working logger before the binary loads its config.
func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "debug"
	}
	if err := Setup(os.Getenv("LOG_ENV"), level, "arcanum"); err != nil {
		panic(err)
	}
}

// Setup replaces the package logger. production and prod select JSON
// output; anything else logs for a console. Every entry carries service.
func Setup(env, level, service string) error {
	var config zap.Config
	switch env {
	case "production", "prod":
		config = zap.NewProductionConfig()
	default:
		config = zap.NewDevelopmentConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	config.Level = lvl
	if service != "" {
		config.InitialFields = map[string]interface{}{"service": service}
	}

	_, err = NewLogger(config)
	return err
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(error error, values ...any) {
	GetLogger().Fatal(error, values...)
}
