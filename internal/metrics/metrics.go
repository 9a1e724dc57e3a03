// Package metrics exposes Prometheus metrics for the chatbot.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	IntentTotal        *prometheus.CounterVec
	ResponsesTotal     *prometheus.CounterVec
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	RetrievalTotal     *prometheus.CounterVec
	RetrievalDuration  *prometheus.HistogramVec
	ActiveSessions     prometheus.Gauge
	EvictedSessions    prometheus.Counter
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		IntentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruitbot_intent_total",
				Help: "Classified messages by intent label",
			},
			[]string{"label"},
		),
		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruitbot_chat_responses_total",
				Help: "Chat replies by outcome",
			},
			[]string{"status"},
		),
		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruitbot_llm_requests_total",
				Help: "Language model requests by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recruitbot_llm_request_duration_seconds",
				Help:    "Duration of language model requests in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		RetrievalTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruitbot_retrieval_requests_total",
				Help: "Vector searches by entity type and outcome",
			},
			[]string{"entity_type", "status"},
		),
		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recruitbot_retrieval_duration_seconds",
				Help:    "Duration of vector searches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "recruitbot_active_sessions",
				Help: "Sessions currently held in memory",
			},
		),
		EvictedSessions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recruitbot_evicted_sessions_total",
				Help: "Sessions evicted after inactivity",
			},
		),
	}
}

func (m *Metrics) ObserveIntent(label string) {
	m.IntentTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveResponse(status string) {
	m.ResponsesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLLM(provider, status string, elapsed time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetrieval(entity, status string, elapsed time.Duration) {
	m.RetrievalTotal.WithLabelValues(entity, status).Inc()
	m.RetrievalDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveEvicted(n int) {
	m.EvictedSessions.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
