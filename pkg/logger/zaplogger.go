package logger

import "go.uber.org/zap"

type ZapLogger struct {
	log *zap.SugaredLogger
}

var zapLogger *ZapLogger

func NewLogger(config zap.Config) (*ZapLogger, error) {
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	defer logger.Sync() //nolint
	logger = logger.WithOptions(zap.AddCallerSkip(2))
	zapLogger = &ZapLogger{log: logger.Sugar()}
	return zapLogger, nil
}

func GetLogger() *ZapLogger {
	if zapLogger == nil {
		panic("logger not initialized")
	}
	return zapLogger
}

// Key/value pairs are scrubbed before they reach zap; messages are expected to be constant strings.

func (l *ZapLogger) Panic(message string, values ...any) {
	l.log.Panicw(message, ScrubValues(values)...)
}

func (l *ZapLogger) Fatal(error error, values ...any) {
	l.log.Fatalw(Scrub(error.Error()), ScrubValues(values)...)
}

func (l *ZapLogger) Info(message string, values ...any) {
	l.log.Infow(message, ScrubValues(values)...)
}

func (l *ZapLogger) Warn(message string, values ...any) {
	l.log.Warnw(message, ScrubValues(values)...)
}

func (l *ZapLogger) Error(message string, values ...any) {
	l.log.Errorw(message, ScrubValues(values)...)
}

func (l *ZapLogger) Debug(message string, values ...any) {
	l.log.Debugw(message, ScrubValues(values)...)
}

func (l *ZapLogger) Printf(format string, args ...interface{}) {
	l.log.Infof(format, ScrubValues(args)...)
}
