package egress

import (
	"bufio"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
)

func TestAuditAllowIsDeduplicated(t *testing.T) {
	g, sink := newTestGuard(t, Config{}, publicResolver)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, g.Check(ctx, "GET", "https://public-host.example/").Allowed())
	}
	require.Equal(t, 1, sink.Count(DecisionAllow))

	// a different method is a different key
	require.True(t, g.Check(ctx, "HEAD", "https://public-host.example/").Allowed())
	require.Equal(t, 2, sink.Count(DecisionAllow))

	stats := g.Audit().Stats()
	require.Equal(t, int64(2), stats.Allowed)
	require.Equal(t, int64(2), stats.Suppressed)
}

func TestAuditBlockIsNeverDeduplicated(t *testing.T) {
	g, sink := newTestGuard(t, Config{}, publicResolver)

	for i := 0; i < 5; i++ {
		require.False(t, g.Check(context.Background(), "GET", "http://127.0.0.1/admin").Allowed())
	}
	require.Equal(t, 5, sink.Count(DecisionBlock))
	require.Equal(t, int64(5), g.Audit().Stats().Blocked)
}

func TestAuditDedupClearsOnOverflow(t *testing.T) {
	cfg := Config{Audit: AuditConfig{DedupCapacity: 1}}
	r := staticResolver(map[string][]string{
		"a.example": {"93.184.216.34"},
		"b.example": {"93.184.216.34"},
	})
	g, sink := newTestGuard(t, cfg, r)
	ctx := context.Background()

	g.Check(ctx, "GET", "http://a.example/")
	g.Check(ctx, "GET", "http://a.example/")
	require.Equal(t, 1, sink.Count(DecisionAllow))

	// b overflows the cache, so a is logged again afterwards
	g.Check(ctx, "GET", "http://b.example/")
	g.Check(ctx, "GET", "http://a.example/")
	require.Equal(t, 3, sink.Count(DecisionAllow))
}

func TestAuditConcurrentAllow(t *testing.T) {
	g, sink := newTestGuard(t, Config{}, publicResolver)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Check(context.Background(), "GET", "https://public-host.example/")
			g.Check(context.Background(), "GET", "http://10.0.0.1/")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, sink.Count(DecisionAllow))
	require.Equal(t, 32, sink.Count(DecisionBlock))
}

func TestAuditEventFields(t *testing.T) {
	g, sink := newTestGuard(t, Config{}, publicResolver)

	ctx := WithCaller(context.Background(), "parser:demo")
	g.Check(ctx, "get", "http://10.0.0.1/x")

	events := sink.Events()
	require.Len(t, events, 1)
	e := events[0]
	require.NotEmpty(t, e.ID)
	require.False(t, e.Time.IsZero())
	require.Equal(t, DecisionBlock, e.Decision)
	require.Equal(t, "GET", e.Method)
	require.Equal(t, "http://10.0.0.1/x", e.URL)
	require.Equal(t, ReasonPrivateNetwork, e.Reason)
	require.Equal(t, "parser:demo", e.Caller)
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	a := NewAuditLog(NewDedupCache(10), sink)
	ctx := context.Background()

	a.Allow(ctx, "GET", "https://example.com/")
	a.Allow(ctx, "GET", "https://example.com/")
	a.Block(ctx, "GET", "http://127.0.0.1/", ReasonLocalAddress, "local address")
	require.NoError(t, a.Close())

	var events []Event
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var e Event
		require.NoError(t, sonic.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	require.Equal(t, DecisionAllow, events[0].Decision)
	require.Equal(t, DecisionBlock, events[1].Decision)
	require.Equal(t, ReasonLocalAddress, events[1].Reason)
}

func TestJSONLFileSink(t *testing.T) {
	path := t.TempDir() + "/audit/audit.jsonl"
	sink, err := NewJSONLFileSink(AuditConfig{File: path, MaxSize: 1})
	require.NoError(t, err)

	require.NoError(t, sink.Emit(context.Background(), Event{ID: "1", Decision: DecisionInfo, Message: "hello"}))
	require.NoError(t, sink.Close())
	require.FileExists(t, path)

	_, err = NewJSONLFileSink(AuditConfig{})
	require.Error(t, err)
}

func TestStatsSub(t *testing.T) {
	cur := Stats{Allowed: 10, Blocked: 4, Warned: 2, Errors: 1, Suppressed: 7}
	prev := Stats{Allowed: 3, Blocked: 4, Warned: 1, Suppressed: 2}
	require.Equal(t, Stats{Allowed: 7, Warned: 1, Errors: 1, Suppressed: 5}, cur.Sub(prev))
}

func TestGuardCloseClosesSinks(t *testing.T) {
	sink := &recordingSink{}
	g, err := New(Config{}, WithResolver(publicResolver), WithAuditSinks(sink))
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.True(t, sink.closed)
}
