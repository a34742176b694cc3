package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LLM call outcomes
const (
	LLMSuccess  = "success"
	LLMError    = "error"
	LLMTimeout  = "timeout"
	LLMFallback = "fallback"
)

// Completion reasons
const (
	CompletedExplicit = "explicit"
	CompletedAuto     = "auto"
)

// Metrics records the business and HTTP instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	sessions     metric.Int64Counter
	turns        metric.Int64Counter
	completions  metric.Int64Counter
	llmCalls     metric.Int64Counter
	llmDuration  metric.Float64Histogram
	scoring      metric.Float64Histogram
	evidence     metric.Int64Histogram
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	var (
		m    Metrics
		errs []error
		err  error
	)

	m.sessions, err = meter.Int64Counter("dialogue_sessions_total",
		metric.WithDescription("Dialogue sessions started"))
	errs = append(errs, err)
	m.turns, err = meter.Int64Counter("dialogue_turns_total",
		metric.WithDescription("Dialogue turns processed"))
	errs = append(errs, err)
	m.completions, err = meter.Int64Counter("dialogue_completions_total",
		metric.WithDescription("Dialogues finalized"))
	errs = append(errs, err)
	m.llmCalls, err = meter.Int64Counter("llm_calls_total",
		metric.WithDescription("Summary LLM calls by outcome"))
	errs = append(errs, err)
	m.llmDuration, err = meter.Float64Histogram("llm_duration_seconds",
		metric.WithDescription("Summary LLM response time"), metric.WithUnit("s"))
	errs = append(errs, err)
	m.scoring, err = meter.Float64Histogram("scoring_duration_seconds",
		metric.WithDescription("Corpus factor scoring time"), metric.WithUnit("s"))
	errs = append(errs, err)
	m.evidence, err = meter.Int64Histogram("evidence_count",
		metric.WithDescription("Evidence reviews per analysis"))
	errs = append(errs, err)
	m.httpRequests, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests"))
	errs = append(errs, err)
	m.httpDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"), metric.WithUnit("s"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// GlobalMetrics creates the instruments on the global meter provider. The
// global provider forwards to whatever InitOTel installs later.
func GlobalMetrics() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return m
}

func category(c string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("category", c))
}

func (m *Metrics) SessionStarted(ctx context.Context, cat string) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, category(cat))
}

func (m *Metrics) TurnProcessed(ctx context.Context, cat string, final bool) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", cat),
		attribute.Bool("is_final", final),
	))
}

// SessionCompleted counts a session that moved to finalized, by reason
func (m *Metrics) SessionCompleted(ctx context.Context, cat, reason string) {
	if m == nil {
		return
	}
	m.completions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", cat),
		attribute.String("reason", reason),
	))
}

// LLMCall counts one summary attempt. d is recorded only when the call was
// actually made.
func (m *Metrics) LLMCall(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if d > 0 {
		m.llmDuration.Record(ctx, d.Seconds())
	}
}

func (m *Metrics) ScoringDuration(ctx context.Context, cat string, d time.Duration) {
	if m == nil {
		return
	}
	m.scoring.Record(ctx, d.Seconds(), category(cat))
}

func (m *Metrics) EvidenceCount(ctx context.Context, cat string, n int) {
	if m == nil {
		return
	}
	m.evidence.Record(ctx, int64(n), category(cat))
}

// HTTPRequest records a served request. route is the mux path template,
// never the raw path.
func (m *Metrics) HTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", route),
		attribute.String("status", strconv.Itoa(status)),
	))
	m.httpDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", route),
	))
}
