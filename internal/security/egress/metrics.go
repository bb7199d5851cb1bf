package egress

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	promreg "github.com/tgifai/netguard/internal/pkg/prometheus"
)

var (
	decisionsTotal = promreg.MustRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netguard",
		Subsystem: "egress",
		Name:      "decisions_total",
		Help:      "Egress guard decisions by outcome and reason.",
	}, []string{"decision", "reason"}))

	resolveSeconds = promreg.MustRegister(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netguard",
		Subsystem: "egress",
		Name:      "resolve_seconds",
		Help:      "Hostname resolution latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"result"}))
)

func observeDecision(d Decision, r Reason) {
	decisionsTotal.WithLabelValues(string(d), string(r)).Inc()
}

func observeResolve(err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	resolveSeconds.WithLabelValues(result).Observe(elapsed.Seconds())
}
