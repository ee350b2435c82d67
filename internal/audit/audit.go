package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/m-mizutani/masq"
)

const redacted = "[REDACTED]"

var apiKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}\b`)

// Logger writes one JSON line per audited action. Sensitive fields are
// redacted by name and every string value is scrubbed of emails, bearer
// tokens and UUID bodies.
type Logger struct {
	log    *slog.Logger
	closer io.Closer
	once   sync.Once
}

func New(w io.Writer) *Logger {
	redact := masq.New(
		masq.WithFieldName("email"),
		masq.WithFieldName("token"),
		masq.WithFieldName("authorization"),
		masq.WithFieldName("api_key"),
		masq.WithFieldName("password"),
		masq.WithContain("Bearer "),
		masq.WithRegex(apiKeyPattern),
	)

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
				a.Value = slog.StringValue(err.Error())
			}
			a = redact(groups, a)
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(logger.Scrub(a.Value.String()))
			}
			return a
		},
	})
	return &Logger{log: slog.New(h).With("stream", "audit")}
}

// Open writes to path, appending. An empty path writes to stdout.
func Open(path string) (*Logger, error) {
	if path == "" {
		return New(os.Stdout), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// Record emits action with zap-style key/value fields.
func (l *Logger) Record(ctx context.Context, action string, fields ...any) {
	l.log.InfoContext(ctx, action, fields...)
}

func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}
