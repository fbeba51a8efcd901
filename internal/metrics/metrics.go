// Package metrics exposes Prometheus collectors for the execution pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	attempts    *prometheus.CounterVec
	recoveries  *prometheus.CounterVec
	compactions *prometheus.CounterVec
	ticketCost  *prometheus.CounterVec
	tickets     *prometheus.CounterVec
	inflight    prometheus.Gauge
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trellm",
			Name:      "attempts_total",
			Help:      "Agent run attempts by outcome.",
		}, []string{"outcome"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trellm",
			Name:      "recoveries_total",
			Help:      "Recovery actions taken after a failed attempt.",
		}, []string{"kind"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trellm",
			Name:      "compactions_total",
			Help:      "Context compactions by result.",
		}, []string{"result"}),
		ticketCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trellm",
			Name:      "ticket_cost_cents_total",
			Help:      "Accumulated ticket cost in cents.",
		}, []string{"project"}),
		tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trellm",
			Name:      "tickets_total",
			Help:      "Tickets finished by project and status.",
		}, []string{"project", "status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trellm",
			Name:      "inflight_tasks",
			Help:      "Tasks currently executing.",
		}),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.recoveries, m.compactions, m.ticketCost, m.tickets, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attempt counts one agent run by outcome (succeeded, context_overflow,
// throttled, timeout, failed).
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Recovery counts a recovery action (compact, backoff, proactive_compact).
func (m *Metrics) Recovery(kind string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(kind).Inc()
}

// Compaction counts a compaction by result (succeeded, failed, unchanged).
func (m *Metrics) Compaction(result string) {
	if m == nil {
		return
	}
	m.compactions.WithLabelValues(result).Inc()
}

// Ticket records a finished ticket and, on success, its cost.
func (m *Metrics) Ticket(project, status string, costCents int64) {
	if m == nil {
		return
	}
	m.tickets.WithLabelValues(project, status).Inc()
	if costCents > 0 {
		m.ticketCost.WithLabelValues(project).Add(float64(costCents))
	}
}

// TaskStarted and TaskFinished track the in-flight gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
