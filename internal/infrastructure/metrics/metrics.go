// Package metrics exposes run outcomes to Prometheus, either through a
// textfile for node_exporter, a Pushgateway, or a /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/semmidev/rotabak/internal/domain"
)

const namespace = "rotabak"

type Recorder struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	stages          *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	filesSelected   prometheus.Gauge
	archiveSize     prometheus.Gauge
	entriesPruned   prometheus.Counter
	lastSuccess     prometheus.Gauge
	lastExitCode    prometheus.Gauge
	lastRunDuration prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of backup runs by outcome",
		}, []string{"status"}),
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage outcomes per pipeline stage",
		}, []string{"stage", "status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
		}, []string{"stage"}),
		filesSelected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_selected",
			Help:      "Files selected by the last run",
		}),
		archiveSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_size_bytes",
			Help:      "Size of the last archive in bytes",
		}),
		entriesPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_entries_total",
			Help:      "Total number of local entries removed by retention",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),
		lastExitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_exit_code",
			Help:      "Exit code of the last run",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
}

func (r *Recorder) ObserveStage(result domain.StageResult) {
	r.stages.WithLabelValues(string(result.Stage), string(result.Status)).Inc()
	if result.Status != domain.StatusSkipped {
		r.stageDuration.WithLabelValues(string(result.Stage)).Observe(result.Duration.Seconds())
	}
}

func (r *Recorder) ObserveRun(report *domain.RunReport) {
	r.runs.WithLabelValues(report.Status()).Inc()
	r.filesSelected.Set(float64(len(report.Selected)))
	r.archiveSize.Set(float64(report.ArtifactSize))
	r.entriesPruned.Add(float64(len(report.Pruned.Deleted)))
	r.lastExitCode.Set(float64(report.ExitCode()))
	r.lastRunDuration.Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
	if report.Err() == nil {
		r.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Flush writes the textfile and pushes to the gateway; either may be empty.
func (r *Recorder) Flush(textfile, pushgateway, job string) error {
	var errs []error
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("write textfile: %w", err))
		}
	}
	if pushgateway != "" {
		if err := push.New(pushgateway, job).Gatherer(r.registry).Push(); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
