package cronjob

import (
	"context"
	"sync"

	"github.com/tgifai/netguard/internal/pkg/logs"
	"github.com/tgifai/netguard/internal/security/egress"
)

const AuditSummaryJobName = "audit-summary"

// AuditSummary logs how many egress decisions were made since its last run.
type AuditSummary struct {
	audit *egress.AuditLog

	mu   sync.Mutex
	last egress.Stats
}

func NewAuditSummary(audit *egress.AuditLog) *AuditSummary {
	return &AuditSummary{audit: audit, last: audit.Stats()}
}

func (a *AuditSummary) Run(ctx context.Context) error {
	delta := a.advance()
	if delta == (egress.Stats{}) {
		logs.CtxDebug(ctx, "[cronjob] audit summary: no egress activity")
		return nil
	}

	logs.CtxWithFields(ctx, logs.InfoLevel, logs.Fields{
		"allowed":    delta.Allowed,
		"blocked":    delta.Blocked,
		"warned":     delta.Warned,
		"errors":     delta.Errors,
		"suppressed": delta.Suppressed,
	}, "[cronjob] audit summary")
	return nil
}

// advance returns the counters accumulated since the previous call.
func (a *AuditSummary) advance() egress.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.audit.Stats()
	delta := cur.Sub(a.last)
	a.last = cur
	return delta
}

// RegisterAuditSummary adds the summary job to s. An empty schedule leaves
// the job disabled and reports false.
func RegisterAuditSummary(s *Scheduler, audit *egress.AuditLog, schedule string) (bool, error) {
	if schedule == "" || audit == nil {
		return false, nil
	}
	if err := s.AddJob(AuditSummaryJobName, schedule, NewAuditSummary(audit).Run); err != nil {
		return false, err
	}
	return true, nil
}
