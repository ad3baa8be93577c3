package fetcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorLogName is the file name of the error log inside the cache root.
const ErrorLogName = "scrape-errors.jsonl"

const maxMessageRunes = 500

// Entry is one error log line.
type Entry struct {
	Kind     string
	Identity string
	URL      string
	Status   int
	Message  string
}

// ErrorLog appends one JSON object per upstream failure. Writes go through a
// single locked sink so concurrent crawls never interleave lines.
type ErrorLog struct {
	logger *zap.Logger
	closer io.Closer
}

// OpenErrorLog opens (or creates) the append-only log under root.
func OpenErrorLog(root string, clock zapcore.Clock) (*ErrorLog, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(root, ErrorLogName)
	// #nosec G304 -- path is the configured cache root plus a constant name.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	l := NewErrorLog(f, clock)
	l.closer = f
	return l, nil
}

// NewErrorLog writes entries to w.
func NewErrorLog(w io.Writer, clock zapcore.Clock) *ErrorLog {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
	opts := []zap.Option{}
	if clock != nil {
		opts = append(opts, zap.WithClock(clock))
	}
	return &ErrorLog{logger: zap.New(core, opts...)}
}

// Record appends e. A nil ErrorLog discards entries.
func (l *ErrorLog) Record(e Entry) {
	if l == nil {
		return
	}
	l.logger.Info("",
		zap.String("entityType", e.Kind),
		zap.String("identity", e.Identity),
		zap.String("url", e.URL),
		zap.Int("status", e.Status),
		zap.String("message", truncate(e.Message, maxMessageRunes)),
	)
}

// Close flushes and closes the underlying file.
func (l *ErrorLog) Close() error {
	if l == nil {
		return nil
	}
	_ = l.logger.Sync()
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("close error log: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
