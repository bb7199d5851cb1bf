package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tgifai/netguard/internal/consts"
	"github.com/tgifai/netguard/internal/pkg/logs"
)

// Event is one audit record.
type Event struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Decision Decision  `json:"decision"`
	Method   string    `json:"method,omitempty"`
	URL      string    `json:"url,omitempty"`
	Reason   Reason    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
	Caller   string    `json:"caller,omitempty"`
	LogID    string    `json:"log_id,omitempty"`
}

// AuditSink receives every emitted event.
type AuditSink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

type Stats struct {
	Allowed    int64 `json:"allowed"`
	Blocked    int64 `json:"blocked"`
	Warned     int64 `json:"warned"`
	Errors     int64 `json:"errors"`
	Suppressed int64 `json:"suppressed"`
}

// Sub returns s - prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Allowed:    s.Allowed - prev.Allowed,
		Blocked:    s.Blocked - prev.Blocked,
		Warned:     s.Warned - prev.Warned,
		Errors:     s.Errors - prev.Errors,
		Suppressed: s.Suppressed - prev.Suppressed,
	}
}

// AuditLog fans decisions out to its sinks. ALLOW events are deduplicated by
// method and url; every other decision is always emitted.
type AuditLog struct {
	dedup *DedupCache
	sinks []AuditSink

	allowed    atomic.Int64
	blocked    atomic.Int64
	warned     atomic.Int64
	failed     atomic.Int64
	suppressed atomic.Int64
}

func NewAuditLog(dedup *DedupCache, sinks ...AuditSink) *AuditLog {
	if dedup == nil {
		dedup = NewDedupCache(DefaultDedupCapacity)
	}
	return &AuditLog{dedup: dedup, sinks: sinks}
}

// WithCaller tags ctx so audit events name the component issuing requests.
func WithCaller(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, consts.CtxKeyCaller, name)
}

func callerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(consts.CtxKeyCaller).(string)
	return v
}

// Allow records an allowed request. It reports whether the event was emitted.
func (a *AuditLog) Allow(ctx context.Context, method, rawURL string) bool {
	return a.Record(ctx, Event{Decision: DecisionAllow, Method: method, URL: rawURL})
}

func (a *AuditLog) Block(ctx context.Context, method, rawURL string, reason Reason, msg string) {
	a.Record(ctx, Event{Decision: DecisionBlock, Method: method, URL: rawURL, Reason: reason, Message: msg})
}

// RecordResult logs a validation outcome: a WARN first if the result carries
// one, then ALLOW or BLOCK.
func (a *AuditLog) RecordResult(ctx context.Context, r Result) {
	var method, rawURL string
	if r.Request != nil {
		method, rawURL = r.Request.Method, r.Request.RawURL
	}
	if r.Warning != "" {
		a.Record(ctx, Event{Decision: DecisionWarn, Method: method, URL: rawURL, Reason: r.Reason, Message: r.Warning})
	}
	if r.Allowed() {
		a.Allow(ctx, method, rawURL)
		return
	}
	a.Block(ctx, method, rawURL, r.Reason, r.Message)
}

// Record emits e to every sink. It reports false when e was a duplicate ALLOW.
func (a *AuditLog) Record(ctx context.Context, e Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	observeDecision(e.Decision, e.Reason)

	switch e.Decision {
	case DecisionAllow:
		if a.dedup.Seen(dedupKey(e.Method, e.URL)) {
			a.suppressed.Add(1)
			return false
		}
		a.allowed.Add(1)
	case DecisionBlock:
		a.blocked.Add(1)
	case DecisionWarn:
		a.warned.Add(1)
	case DecisionError:
		a.failed.Add(1)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Caller == "" {
		e.Caller = callerFrom(ctx)
	}
	if e.LogID == "" {
		e.LogID = logs.GetLogID(ctx)
	}

	for _, s := range a.sinks {
		if err := s.Emit(ctx, e); err != nil {
			logs.CtxWarn(ctx, "[egress] audit sink emit failed: %v", err)
		}
	}
	return true
}

func (a *AuditLog) Stats() Stats {
	return Stats{
		Allowed:    a.allowed.Load(),
		Blocked:    a.blocked.Load(),
		Warned:     a.warned.Load(),
		Errors:     a.failed.Load(),
		Suppressed: a.suppressed.Load(),
	}
}

func (a *AuditLog) Dedup() *DedupCache {
	return a.dedup
}

func (a *AuditLog) Close() error {
	var errs []error
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
