package egress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tgifai/netguard/internal/pkg/logs"
)

// LogSink writes one line per event to the process logger.
type LogSink struct {
	logger logs.Logger
}

func NewLogSink(l logs.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	fields := logs.Fields{"audit_id": e.ID}
	if e.Reason != ReasonNone {
		fields["reason"] = string(e.Reason)
	}
	if e.Message != "" {
		fields["detail"] = e.Message
	}
	if e.Caller != "" {
		fields["caller"] = e.Caller
	}

	msg := fmt.Sprintf("[Guard-%s] %-6s %s", e.Decision, e.Method, e.URL)
	if e.Method == "" && e.URL == "" {
		msg = fmt.Sprintf("[Guard-%s] %s", e.Decision, e.Message)
		delete(fields, "detail")
	}

	l := s.logger
	if l == nil {
		l = logs.DefaultLogger()
	}
	l.CtxFields(ctx, levelFor(e.Decision), fields, msg)
	return nil
}

func (s *LogSink) Close() error { return nil }

func levelFor(d Decision) logs.LogLevel {
	switch d {
	case DecisionBlock, DecisionWarn:
		return logs.WarnLevel
	case DecisionError:
		return logs.ErrorLevel
	default:
		return logs.InfoLevel
	}
}

// JSONLSink appends events as JSON lines.
type JSONLSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// NewJSONLFileSink writes to a size-rotated file.
func NewJSONLFileSink(cfg AuditConfig) (*JSONLSink, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 50
	}
	return NewJSONLSink(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}), nil
}

func (s *JSONLSink) Emit(_ context.Context, e Event) error {
	line, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
