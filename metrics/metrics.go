// Package metrics exposes Prometheus counters for the group chat.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns its registry so several loops, and tests, never collide on
// the global default registerer. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	turns              *prometheus.CounterVec
	routingFallbacks   prometheus.Counter
	terminationChecks  *prometheus.CounterVec
	invocations        *prometheus.CounterVec
	modelRequests      *prometheus.CounterVec
	modelRequestTiming *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_turns_total",
				Help: "Total number of participant replies",
			},
			[]string{"participant"},
		),
		routingFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groupchat_routing_fallbacks_total",
				Help: "Routing answers that could not be used and fell back to the start participant",
			},
		),
		terminationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_termination_checks_total",
				Help: "Termination checks by verdict",
			},
			[]string{"verdict"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_invocations_total",
				Help: "Completed chat invocations by reason",
			},
			[]string{"reason"},
		),
		modelRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_model_requests_total",
				Help: "Chat completion requests by caller and status",
			},
			[]string{"caller", "status"},
		),
		modelRequestTiming: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groupchat_model_request_duration_seconds",
				Help:    "Chat completion request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"caller"},
		),
	}

	r.registry.MustRegister(
		r.turns,
		r.routingFallbacks,
		r.terminationChecks,
		r.invocations,
		r.modelRequests,
		r.modelRequestTiming,
	)
	return r
}

// RecordTurn counts one reply by participant.
func (r *Recorder) RecordTurn(participant string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(participant).Inc()
}

func (r *Recorder) RecordRoutingFallback() {
	if r == nil {
		return
	}
	r.routingFallbacks.Inc()
}

func (r *Recorder) RecordTerminationCheck(satisfied bool) {
	if r == nil {
		return
	}
	verdict := "unsatisfied"
	if satisfied {
		verdict = "satisfied"
	}
	r.terminationChecks.WithLabelValues(verdict).Inc()
}

func (r *Recorder) RecordInvocation(reason string) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(reason).Inc()
}

// RecordModelRequest counts one chat completion call and observes its duration.
func (r *Recorder) RecordModelRequest(caller string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.modelRequests.WithLabelValues(caller, status).Inc()
	r.modelRequestTiming.WithLabelValues(caller).Observe(duration.Seconds())
}

// Gatherer exposes the recorder's registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, recorder *Recorder, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
