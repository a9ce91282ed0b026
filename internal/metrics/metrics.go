// Package metrics exposes Prometheus collectors fed by pipeline observer
// events, and a small HTTP server that serves them while a run is active.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scribe/internal/logging"
	"scribe/internal/pipeline"
)

const namespace = "scribe"

// Collector records run and stage outcomes. It implements pipeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	stagesTotal   *prometheus.CounterVec
	resumedTotal  *prometheus.CounterVec
	degradedTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runDuration   prometheus.Histogram
	activeRuns    prometheus.Gauge
}

// New returns a collector backed by its own registry, which also carries the
// Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by terminal state",
		}, []string{"state"}),
		stagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Stage outcomes by stage and status",
		}, []string{"stage", "status"}),
		resumedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_resumed_total",
			Help:      "Stages satisfied from a checkpoint instead of executing",
		}, []string{"stage"}),
		degradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_degraded_total",
			Help:      "Optional stages that produced placeholder output",
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of executed stages",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of whole runs",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently executing in this process",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RunStarted(pipeline.Run) {
	c.activeRuns.Inc()
}

func (c *Collector) StageChanged(_ pipeline.Run, stage pipeline.StageState) {
	switch stage.Status {
	case pipeline.StatusComplete, pipeline.StatusFailed, pipeline.StatusSkipped:
	default:
		return
	}
	c.stagesTotal.WithLabelValues(stage.Name, string(stage.Status)).Inc()
	if stage.Resumed {
		c.resumedTotal.WithLabelValues(stage.Name).Inc()
		return
	}
	if stage.Degraded {
		c.degradedTotal.WithLabelValues(stage.Name).Inc()
	}
	if d := stage.Duration(); d > 0 {
		c.stageDuration.WithLabelValues(stage.Name).Observe(d.Seconds())
	}
}

func (c *Collector) RunFinished(run pipeline.Run) {
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(string(run.State)).Inc()
	if !run.StartedAt.IsZero() && run.FinishedAt.After(run.StartedAt) {
		c.runDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

// Server serves /metrics in the background.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
	done     chan struct{}
}

// Serve starts listening on addr and returns once the socket is bound.
func Serve(addr string, c *Collector, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", logging.String("listen", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
