package cronjob

import (
	"context"
	"testing"

	"github.com/tgifai/netguard/internal/security/egress"
)

func TestAuditSummaryReportsDeltas(t *testing.T) {
	ctx := context.Background()
	audit := egress.NewAuditLog(nil)
	audit.Allow(ctx, "GET", "https://example.com/before")

	summary := NewAuditSummary(audit)
	if got := summary.advance(); got != (egress.Stats{}) {
		t.Fatalf("activity before construction must not be reported, got %+v", got)
	}

	audit.Allow(ctx, "GET", "https://example.com/a")
	audit.Allow(ctx, "GET", "https://example.com/a")
	audit.Block(ctx, "GET", "http://10.0.0.1/", egress.ReasonPrivateNetwork, "blocked")

	got := summary.advance()
	want := egress.Stats{Allowed: 1, Blocked: 1, Suppressed: 1}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := summary.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.advance(); got != (egress.Stats{}) {
		t.Fatalf("expected no new activity, got %+v", got)
	}
}

func TestRegisterAuditSummary(t *testing.T) {
	audit := egress.NewAuditLog(nil)

	s := NewScheduler(Options{})
	ok, err := RegisterAuditSummary(s, audit, "")
	if err != nil || ok {
		t.Fatalf("empty schedule should disable the job, got ok=%v err=%v", ok, err)
	}

	ok, err = RegisterAuditSummary(s, audit, "@every 10m")
	if err != nil || !ok {
		t.Fatalf("register: ok=%v err=%v", ok, err)
	}
	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != AuditSummaryJobName {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	if _, err := RegisterAuditSummary(NewScheduler(Options{}), audit, "never"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
