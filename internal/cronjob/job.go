package cronjob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the unit of work a job runs on every fire.
type JobFunc func(ctx context.Context) error

// Job describes a single scheduled unit of work.
type Job struct {
	Name     string
	Schedule string // "10m" | "@every 10m" | "@hourly" | "0 9 * * *"

	// --- runtime state ---
	LastRunAt      *time.Time
	NextRunAt      time.Time
	ConsecutiveErr int

	run   JobFunc
	sched cron.Schedule
}
