package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/target"
)

const targetScopeName = "github.com/trackbridge/trackbridge/target"

// InstrumentedTarget wraps target.Target with OTel tracing and metrics.
// Every method gets a span and is counted in trackbridge.target.* metrics.
// Use WrapTarget to create one; it returns the original target unchanged
// when telemetry is disabled.
type InstrumentedTarget struct {
	inner     target.Target
	tracer    trace.Tracer
	calls     metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	remaining metric.Int64Gauge
}

var _ target.Target = (*InstrumentedTarget)(nil)

// WrapTarget returns t decorated with OTel instrumentation.
// When telemetry is disabled, t is returned as-is.
func WrapTarget(t target.Target) target.Target {
	if !Enabled() {
		return t
	}
	return newInstrumentedTarget(t)
}

func newInstrumentedTarget(t target.Target) *InstrumentedTarget {
	m := Meter(targetScopeName)
	calls, _ := m.Int64Counter("trackbridge.target.calls",
		metric.WithDescription("Total target API calls"),
	)
	dur, _ := m.Float64Histogram("trackbridge.target.duration",
		metric.WithDescription("Target API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("trackbridge.target.errors",
		metric.WithDescription("Total failed target API calls"),
	)
	remaining, _ := m.Int64Gauge("trackbridge.ratelimit.remaining",
		metric.WithDescription("Requests left in the current rate-limit window"),
	)
	return &InstrumentedTarget{
		inner:     t,
		tracer:    Tracer(targetScopeName),
		calls:     calls,
		dur:       dur,
		errs:      errs,
		remaining: remaining,
	}
}

// op starts a span and counts the named call.
func (s *InstrumentedTarget) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("target.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "target."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.calls.Add(ctx, 1, metric.WithAttributes(all[0]))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedTarget) done(ctx context.Context, span trace.Span, start time.Time, name string, err error) {
	op := metric.WithAttributes(attribute.String("target.operation", name))
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, op)
	}
	span.End()
}

func (s *InstrumentedTarget) FetchIssueNumbers(ctx context.Context) ([]int, error) {
	ctx, span, t := s.op(ctx, "FetchIssueNumbers")
	v, err := s.inner.FetchIssueNumbers(ctx)
	span.SetAttributes(attribute.Int("target.issue.count", len(v)))
	s.done(ctx, span, t, "FetchIssueNumbers", err)
	return v, err
}

func (s *InstrumentedTarget) ListCollaborators(ctx context.Context) ([]github.User, error) {
	ctx, span, t := s.op(ctx, "ListCollaborators")
	v, err := s.inner.ListCollaborators(ctx)
	s.done(ctx, span, t, "ListCollaborators", err)
	return v, err
}

func (s *InstrumentedTarget) GetLabel(ctx context.Context, name string) (*github.Label, error) {
	ctx, span, t := s.op(ctx, "GetLabel", attribute.String("target.label", name))
	v, err := s.inner.GetLabel(ctx, name)
	if github.IsNotFound(err) {
		// A miss is an expected answer, not a failure.
		s.done(ctx, span, t, "GetLabel", nil)
		return v, err
	}
	s.done(ctx, span, t, "GetLabel", err)
	return v, err
}

func (s *InstrumentedTarget) CreateLabel(ctx context.Context, name, color string) (*github.Label, error) {
	ctx, span, t := s.op(ctx, "CreateLabel", attribute.String("target.label", name))
	v, err := s.inner.CreateLabel(ctx, name, color)
	s.done(ctx, span, t, "CreateLabel", err)
	return v, err
}

func (s *InstrumentedTarget) CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error) {
	ctx, span, t := s.op(ctx, "CreateIssue", attribute.Int("target.label.count", len(req.Labels)))
	v, err := s.inner.CreateIssue(ctx, req)
	if v != nil {
		span.SetAttributes(attribute.Int("target.issue.number", v.Number))
	}
	s.done(ctx, span, t, "CreateIssue", err)
	return v, err
}

func (s *InstrumentedTarget) CreateComment(ctx context.Context, number int, body string) (*github.Comment, error) {
	ctx, span, t := s.op(ctx, "CreateComment", attribute.Int("target.issue.number", number))
	v, err := s.inner.CreateComment(ctx, number, body)
	s.done(ctx, span, t, "CreateComment", err)
	return v, err
}

func (s *InstrumentedTarget) CloseIssue(ctx context.Context, number int) error {
	ctx, span, t := s.op(ctx, "CloseIssue", attribute.Int("target.issue.number", number))
	err := s.inner.CloseIssue(ctx, number)
	s.done(ctx, span, t, "CloseIssue", err)
	return err
}

func (s *InstrumentedTarget) RateLimit(ctx context.Context) (*github.RateLimit, error) {
	ctx, span, t := s.op(ctx, "RateLimit")
	v, err := s.inner.RateLimit(ctx)
	if v != nil {
		s.remaining.Record(ctx, int64(v.Remaining))
		span.SetAttributes(attribute.Int("ratelimit.remaining", v.Remaining))
	}
	s.done(ctx, span, t, "RateLimit", err)
	return v, err
}
