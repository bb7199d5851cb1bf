package logs

import (
	"context"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

type fieldsEntry struct {
	level  LogLevel
	fields Fields
	msg    string
}

type capturingLogger struct {
	Logger
	entries []fieldsEntry
	level   LogLevel
}

func (c *capturingLogger) CtxFields(_ context.Context, level LogLevel, fields Fields, msg string) {
	c.entries = append(c.entries, fieldsEntry{level: level, fields: fields, msg: msg})
}

func (c *capturingLogger) SetLevel(level LogLevel) { c.level = level }

func TestHertzBridgeTagsComponent(t *testing.T) {
	c := &capturingLogger{}
	l := NewHlogLogger(c)

	l.Notice("listening on ", ":8080")
	l.CtxWarnf(context.Background(), "slow handler %s", "/api/v1/fetch")
	l.Info("100% ready")

	if len(c.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(c.entries))
	}
	want := []fieldsEntry{
		{level: InfoLevel, msg: "listening on :8080"},
		{level: WarnLevel, msg: "slow handler /api/v1/fetch"},
		{level: InfoLevel, msg: "100% ready"},
	}
	for i, w := range want {
		got := c.entries[i]
		if got.level != w.level || got.msg != w.msg {
			t.Fatalf("entry %d: got (%v, %q), want (%v, %q)", i, got.level, got.msg, w.level, w.msg)
		}
		if got.fields["component"] != HertzComponent {
			t.Fatalf("entry %d: component = %v", i, got.fields["component"])
		}
	}
}

func TestHertzBridgeKeepsConfiguredLevel(t *testing.T) {
	c := &capturingLogger{level: WarnLevel}
	NewHlogLogger(c).SetLevel(hlog.LevelTrace)
	if c.level != WarnLevel {
		t.Fatalf("level changed to %v", c.level)
	}
}
