package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mlinzi/internal/audit"
	"github.com/jkaninda/mlinzi/internal/opcli"
)

// --- InstrumentedInvoker ---

// InstrumentedInvoker wraps an opcli.Invoker with metrics, tracing, and
// anomaly detection. Only the op verb reaches labels and span attributes;
// argv, stdout, and stderr never do.
type InstrumentedInvoker struct {
	inner   opcli.Invoker
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedInvoker wraps an op invoker with observability.
func NewInstrumentedInvoker(inner opcli.Invoker, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedInvoker {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedInvoker{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

func (i *InstrumentedInvoker) Run(ctx context.Context, args ...string) ([]byte, error) {
	verb := opcli.CommandVerb(args)

	if i.tracer != nil {
		var span trace.Span
		ctx, span = i.tracer.Start(ctx, "op.run",
			trace.WithAttributes(
				attribute.String("op.verb", verb),
			))
		defer span.End()
	}

	start := time.Now()
	out, err := i.inner.Run(ctx, args...)
	duration := time.Since(start).Seconds()

	status := invocationStatus(err)
	if err != nil && i.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if i.metrics != nil {
		i.metrics.OpInvocationsTotal.WithLabelValues(verb, status).Inc()
		i.metrics.OpInvocationDuration.WithLabelValues(verb).Observe(duration)
	}

	if i.anomaly != nil {
		switch status {
		case "success", "not_found":
			// A missing item is a normal answer, not a failure signal.
			i.anomaly.RecordSuccess(verb)
		case "auth_failed":
			i.anomaly.RecordAuthFailure(verb)
		default:
			i.anomaly.RecordError(verb)
		}
	}

	return out, err
}

// invocationStatus maps an invocation error to a bounded metric label.
func invocationStatus(err error) string {
	if err == nil {
		return "success"
	}
	var notFound *opcli.NotFoundError
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var auth *opcli.AuthenticationError
	if errors.As(err, &auth) {
		return "auth_failed"
	}
	var cmdErr *opcli.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == opcli.TimeoutExitCode {
		return "timeout"
	}
	return "command_error"
}

// --- InstrumentedRecorder ---

// InstrumentedRecorder wraps an audit.Recorder. Every broker operation
// emits exactly one audit event, so this is also where broker-operation
// and unlock counters live.
type InstrumentedRecorder struct {
	inner   audit.Recorder
	metrics *MetricsCollector
}

// NewInstrumentedRecorder wraps an audit recorder with metrics.
func NewInstrumentedRecorder(inner audit.Recorder, metrics *MetricsCollector) *InstrumentedRecorder {
	return &InstrumentedRecorder{inner: inner, metrics: metrics}
}

func (r *InstrumentedRecorder) Record(ctx context.Context, event audit.Event) error {
	if r.metrics != nil {
		r.metrics.BrokerOpsTotal.WithLabelValues(event.Op, event.Outcome).Inc()
		if event.Op == "item_unlock" && event.Outcome == audit.OutcomeSuccess {
			r.metrics.UnlocksTotal.Inc()
		}
	}

	err := r.inner.Record(ctx, event)
	if err == nil && r.metrics != nil {
		r.metrics.AuditEventsTotal.WithLabelValues(event.Op, event.Outcome).Inc()
	}
	return err
}

// --- Compile-time interface checks ---

var (
	_ opcli.Invoker  = (*InstrumentedInvoker)(nil)
	_ audit.Recorder = (*InstrumentedRecorder)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
