// Package metrics exposes fetch and pipeline run counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MarketVault/internal/model"
)

// Metrics holds the registered collectors and the HTTP server that exposes
// them on /metrics.
type Metrics struct {
	server *http.Server

	runsTotal     *prometheus.CounterVec
	fetchTotal    *prometheus.CounterVec
	staleSources  prometheus.Gauge
	lastRunTS     prometheus.Gauge
	pipelineTotal *prometheus.CounterVec
}

// New registers the collectors on a fresh registry and prepares an HTTP
// server on addr. Pass an empty addr to disable serving; ObserveRun still
// updates the collectors.
func New(addr string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketvault",
			Name:      "fetch_runs_total",
			Help:      "Fetch runs by classification",
		}, []string{"classification"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketvault",
			Name:      "source_fetches_total",
			Help:      "Per-source fetch outcomes",
		}, []string{"source", "outcome"}),
		staleSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketvault",
			Name:      "stale_sources",
			Help:      "Sources served from cache in the last run",
		}),
		lastRunTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketvault",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed fetch run",
		}),
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketvault",
			Name:      "pipeline_runs_total",
			Help:      "Staged pipeline runs by terminal status",
		}, []string{"status"}),
	}
	reg.MustRegister(m.runsTotal, m.fetchTotal, m.staleSources, m.lastRunTS, m.pipelineTotal)

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		m.server = &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return m
}

// ObserveRun records one completed fetch run.
func (m *Metrics) ObserveRun(manifest *model.RunManifest, class model.Classification) {
	m.runsTotal.WithLabelValues(string(class)).Inc()
	for id, st := range manifest.Sources {
		switch {
		case st.OK && st.UsedCache:
			m.fetchTotal.WithLabelValues(id, "fallback").Inc()
		case st.OK:
			m.fetchTotal.WithLabelValues(id, "ok").Inc()
		default:
			m.fetchTotal.WithLabelValues(id, "error").Inc()
		}
	}
	m.staleSources.Set(float64(len(manifest.StaleSources)))
	m.lastRunTS.Set(float64(time.Now().Unix()))
}

// ObservePipelineRun records one staged pipeline run.
func (m *Metrics) ObservePipelineRun(rec *model.PipelineRunRecord) {
	m.pipelineTotal.WithLabelValues(string(rec.Status)).Inc()
}

// Serve blocks serving /metrics until Shutdown. No-op when addr was empty.
func (m *Metrics) Serve() error {
	if m.server == nil {
		return nil
	}
	err := m.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
