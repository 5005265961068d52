// Package metrics records per-run deployment metrics and pushes them to a
// Prometheus pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the pushgateway job name.
const DefaultJob = "vote_deployer"

// Recorder holds the metrics of one run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	gasUsed         *prometheus.CounterVec
	estimatedGas    prometheus.Gauge
	tally           *prometheus.GaugeVec
	tallyMismatches prometheus.Counter
	votesTotal      prometheus.Counter
	runSuccess      prometheus.Gauge
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// Pipeline metrics
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "votes_deploy_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votes_deploy_stage_failures_total",
				Help: "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		runSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "votes_deploy_run_success",
				Help: "1 if the last run completed every stage, 0 otherwise",
			},
		),

		// Gas metrics
		gasUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votes_deploy_gas_used_total",
				Help: "Total gas used by transactions, by kind",
			},
			[]string{"kind"},
		),
		estimatedGas: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "votes_deploy_estimated_gas",
				Help: "Gas estimated for the contract deployment",
			},
		),

		// Verification metrics
		tally: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "votes_deploy_tally",
				Help: "Last tally observed for a candidate",
			},
			[]string{"candidate"},
		),
		tallyMismatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "votes_deploy_tally_mismatches_total",
				Help: "Total number of checks that observed an unexpected tally",
			},
		),
		votesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "votes_deploy_votes_total",
				Help: "Total number of confirmed votes",
			},
		),
	}
}

// Registry returns the registry holding the run's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records a stage's duration and, if err is set, its failure.
func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveDeployment records the deployment's gas figures.
func (r *Recorder) ObserveDeployment(estimated, used uint64) {
	r.estimatedGas.Set(float64(estimated))
	r.gasUsed.WithLabelValues("deploy").Add(float64(used))
}

// ObserveVote records a confirmed vote.
func (r *Recorder) ObserveVote(used uint64) {
	r.votesTotal.Inc()
	r.gasUsed.WithLabelValues("vote").Add(float64(used))
}

// ObserveTally records a tally read.
func (r *Recorder) ObserveTally(candidate string, tally uint64, matched bool) {
	r.tally.WithLabelValues(candidate).Set(float64(tally))
	if !matched {
		r.tallyMismatches.Inc()
	}
}

// ObserveRun records the overall outcome.
func (r *Recorder) ObserveRun(err error) {
	if err != nil {
		r.runSuccess.Set(0)
		return
	}
	r.runSuccess.Set(1)
}

// Push sends the run's metrics to the pushgateway at url, grouped by run ID.
func (r *Recorder) Push(ctx context.Context, url, job, runID string) error {
	if job == "" {
		job = DefaultJob
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
