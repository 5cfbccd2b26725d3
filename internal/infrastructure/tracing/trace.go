package tracing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/id"
)

// TraceID groups the spans of one environment or one request.
type TraceID string

// SpanID names one span.
type SpanID string

// bufferSize is how many finished spans may wait for the collector.
const bufferSize = 1024

// Span is one timed operation: a system call or a monitor request.
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Op       string
	Start    time.Time
	Elapsed  time.Duration
	Err      error

	attrs []zap.Field
}

// Finish stops the span's clock.
func (s *Span) Finish() {
	s.Elapsed = time.Since(s.Start)
}

// SetTag attaches a string attribute. Attributes are logged in the order
// they were set.
func (s *Span) SetTag(key, value string) {
	s.attrs = append(s.attrs, zap.String(key, value))
}

// SetError marks the span failed.
func (s *Span) SetError(err error) {
	s.Err = err
}

// Tracer hands finished spans to a collector goroutine that logs them.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// New starts a tracer for service logging through logger.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger.With(zap.String("service", service)),
		spans:   make(chan *Span, bufferSize),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// NewTraceID returns a fresh trace id.
func NewTraceID() TraceID {
	return TraceID(id.NewTraceID())
}

// StartSpan opens a span under the trace and span carried by ctx, or in
// a new trace, and returns ctx carrying the new span.
func (t *Tracer) StartSpan(ctx context.Context, op string) (*Span, context.Context) {
	trace := GetTraceID(ctx)
	if trace == "" {
		trace = NewTraceID()
	}
	parent, _ := ctx.Value(spanIDKey).(SpanID)
	s := t.open(trace, parent, op)

	ctx = context.WithValue(ctx, traceIDKey, trace)
	ctx = context.WithValue(ctx, spanIDKey, s.SpanID)
	return s, ctx
}

// StartRootSpan opens a parentless span in trace. System calls use it:
// they have no context, only their environment's trace.
func (t *Tracer) StartRootSpan(trace TraceID, op string) *Span {
	if trace == "" {
		trace = NewTraceID()
	}
	return t.open(trace, "", op)
}

func (t *Tracer) open(trace TraceID, parent SpanID, op string) *Span {
	return &Span{
		TraceID:  trace,
		SpanID:   SpanID(id.NewSpanID()),
		ParentID: parent,
		Op:       op,
		Start:    time.Now(),
	}
}

// Submit queues a finished span. It never blocks: spans arriving at a
// full buffer or after Close are counted and dropped.
func (t *Tracer) Submit(s *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.dropped.Add(1)
		return
	}
	select {
	case t.spans <- s:
	default:
		if t.dropped.Add(1) == 1 {
			t.logger.Warn("span buffer full, dropping spans", zap.String("op", s.Op))
		}
	}
}

// Dropped is the number of spans lost so far.
func (t *Tracer) Dropped() uint64 { return t.dropped.Load() }

// Close stops accepting spans and waits for the queued ones to be logged.
func (t *Tracer) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.spans)
	}
	t.mu.Unlock()
	<-t.done
}

func (t *Tracer) collect() {
	defer close(t.done)
	for s := range t.spans {
		fields := make([]zap.Field, 0, 5+len(s.attrs))
		fields = append(fields,
			zap.String("trace_id", string(s.TraceID)),
			zap.String("span_id", string(s.SpanID)),
			zap.String("op", s.Op),
			zap.Duration("elapsed", s.Elapsed),
		)
		if s.ParentID != "" {
			fields = append(fields, zap.String("parent_id", string(s.ParentID)))
		}
		fields = append(fields, s.attrs...)

		if s.Err != nil {
			t.logger.Warn("span failed", append(fields, zap.Error(s.Err))...)
			continue
		}
		t.logger.Debug("span", fields...)
	}
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// GetTraceID returns the trace carried by ctx, or "".
func GetTraceID(ctx context.Context) TraceID {
	v, _ := ctx.Value(traceIDKey).(TraceID)
	return v
}

// ExtractTraceContext reads the propagation headers.
func ExtractTraceContext(headers map[string]string) (TraceID, SpanID) {
	return TraceID(headers["X-Trace-ID"]), SpanID(headers["X-Span-ID"])
}
