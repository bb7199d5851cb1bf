package logs

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// HertzComponent tags every line the gateway's HTTP framework emits, so
// framework noise can be filtered apart from guard decisions.
const HertzComponent = "hertz"

// hertzBridge forwards hertz framework logging into the guard's logger as
// structured entries carrying component=hertz.
type hertzBridge struct {
	l Logger
}

var _ hlog.FullLogger = (*hertzBridge)(nil)

// NewHlogLogger returns a hertz FullLogger backed by the given Logger.
func NewHlogLogger(l Logger) hlog.FullLogger {
	return &hertzBridge{l: l}
}

func (b *hertzBridge) emit(ctx context.Context, level LogLevel, msg string) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.l.CtxFields(ctx, level, Fields{"component": HertzComponent}, msg)
}

func (b *hertzBridge) Trace(v ...interface{})  { b.emit(context.Background(), DebugLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Debug(v ...interface{})  { b.emit(context.Background(), DebugLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Info(v ...interface{})   { b.emit(context.Background(), InfoLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Notice(v ...interface{}) { b.emit(context.Background(), InfoLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Warn(v ...interface{})   { b.emit(context.Background(), WarnLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Error(v ...interface{})  { b.emit(context.Background(), ErrorLevel, fmt.Sprint(v...)) }
func (b *hertzBridge) Fatal(v ...interface{})  { b.emit(context.Background(), FatalLevel, fmt.Sprint(v...)) }

func (b *hertzBridge) Tracef(format string, v ...interface{}) {
	b.emit(context.Background(), DebugLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Debugf(format string, v ...interface{}) {
	b.emit(context.Background(), DebugLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Infof(format string, v ...interface{}) {
	b.emit(context.Background(), InfoLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Noticef(format string, v ...interface{}) {
	b.emit(context.Background(), InfoLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Warnf(format string, v ...interface{}) {
	b.emit(context.Background(), WarnLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Errorf(format string, v ...interface{}) {
	b.emit(context.Background(), ErrorLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) Fatalf(format string, v ...interface{}) {
	b.emit(context.Background(), FatalLevel, fmt.Sprintf(format, v...))
}

func (b *hertzBridge) CtxTracef(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, DebugLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, DebugLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxInfof(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, InfoLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxNoticef(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, InfoLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxWarnf(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, WarnLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, ErrorLevel, fmt.Sprintf(format, v...))
}
func (b *hertzBridge) CtxFatalf(ctx context.Context, format string, v ...interface{}) {
	b.emit(ctx, FatalLevel, fmt.Sprintf(format, v...))
}

// SetLevel is ignored: the guard's configured log level is authoritative and
// hertz would otherwise reset it when the server boots.
func (b *hertzBridge) SetLevel(hlog.Level) {}

// SetOutput is ignored; output is owned by the rotating writer.
func (b *hertzBridge) SetOutput(io.Writer) {}
