package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fikriaf/ordo-backend/pkg/config"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Metric definitions
// Ensure that this follows best practices for naming: https://prometheus.io/docs/practices/naming/
var (
	metricNamePrefix = "ordo_backend"
)

// AddBuildInfoMetric adds a static metric with the build information
func AddBuildInfoMetric() {
	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricNamePrefix,
			Name:      "build_info",
			Help:      "A metric with a constant '1' value labeled by version, branch, commit, build date, and goversion.",
			ConstLabels: prometheus.Labels{
				"version":   config.Version,
				"branch":    config.Branch,
				"commit":    config.Commit,
				"goversion": config.GoVersion,
			},
		},
		func() float64 { return 1 },
	))
	if err != nil {
		logging.LogErrorf(err, "Error registering build info metric")
	}
}

// toolInvocations counts tool executions by source and outcome
var toolInvocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamePrefix,
		Name:      "tool_invocations_total",
		Help:      "Number of tool invocations by source and outcome.",
	},
	[]string{"source", "outcome"},
)

// agentRounds observes how many LLM rounds a turn needed
var agentRounds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: metricNamePrefix,
		Name:      "agent_rounds_per_turn",
		Help:      "Number of LLM rounds needed to answer one user turn.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
	},
)

// RegisterAgentMetrics registers the agent counters once at startup
func RegisterAgentMetrics() {
	for _, c := range []prometheus.Collector{toolInvocations, agentRounds} {
		if err := prometheus.Register(c); err != nil {
			logging.LogErrorf(err, "Error registering agent metric")
		}
	}
}

// ObserveToolInvocation records one tool execution
func ObserveToolInvocation(source string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	toolInvocations.WithLabelValues(source, outcome).Inc()
}

// ObserveAgentRounds records the rounds of one finished turn
func ObserveAgentRounds(rounds int) {
	agentRounds.Observe(float64(rounds))
}
