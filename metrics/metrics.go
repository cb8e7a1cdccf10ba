// Package metrics declares the Prometheus collectors for pipeline runs, the
// GitHub fetcher, the judgment service and the sandbox tool, plus a small
// HTTP endpoint to expose them.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/reposcout/errors"
)

var (
	// StageDuration measures stage wall time.
	// Labels: stage, outcome (ok, error)
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scout",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Stage wall time by stage and outcome",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"stage", "outcome"})

	// StageCandidates records the collection size a stage produced.
	StageCandidates = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scout",
		Subsystem: "pipeline",
		Name:      "stage_candidates",
		Help:      "Candidates in the collection written by the stage",
	}, []string{"stage"})

	// FetchAttempts counts GitHub HTTP attempts.
	// Labels: endpoint (contents, pulls, commits, issues, search), outcome (ok, not_found, rate_limited, transient)
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Subsystem: "github",
		Name:      "attempts_total",
		Help:      "GitHub request attempts by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// FetchCache counts contents-cache lookups.
	// Labels: result (hit, miss)
	FetchCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Subsystem: "github",
		Name:      "cache_lookups_total",
		Help:      "Contents cache lookups by result",
	}, []string{"result"})

	// BackoffSeconds observes every wait computed by the retry policy.
	BackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scout",
		Subsystem: "github",
		Name:      "backoff_seconds",
		Help:      "Retry waits computed from backoff and rate-limit headers",
		Buckets:   []float64{1, 2, 4, 8, 16, 60, 300, 900},
	})

	// Judgments counts compatibility verdicts.
	// Labels: verdict (yes, no, error)
	Judgments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Subsystem: "judge",
		Name:      "verdicts_total",
		Help:      "Compatibility judgments by verdict",
	}, []string{"verdict"})

	// ToolInvocations counts sandbox tool calls.
	// Labels: outcome (ok, degraded)
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scout",
		Subsystem: "sandbox",
		Name:      "invocations_total",
		Help:      "Sandbox tool invocations by outcome",
	}, []string{"outcome"})
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Server exposes /metrics until Shutdown.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts the metrics endpoint on addr in the background.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
