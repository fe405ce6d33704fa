package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveTracerName  = "board-sync/api"
	moveSpanName    = "board.move"
	moveRoute       = "/api/boards/:board/move"
	moveEventName   = "board.move.completed"
	moveEventDomain = "board"
)

// moveRequestMetrics collects per-request observations for the move endpoint
// and emits them twice on completion: as a structured log entry and as an
// event on the request span.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration    time.Duration
	proposeDuration time.Duration
	board           string
	resultState     string
	flowKind        string
	duplicate       bool
	errorStage      string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(moveTracerName).Start(ctx, moveSpanName)
	return &moveRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *moveRequestMetrics) ObservePropose(d time.Duration) {
	if d > 0 {
		m.proposeDuration = d
	}
}

func (m *moveRequestMetrics) SetBoard(board string)   { m.board = board }
func (m *moveRequestMetrics) SetResult(state string)  { m.resultState = state }
func (m *moveRequestMetrics) SetFlowKind(kind string) { m.flowKind = kind }
func (m *moveRequestMetrics) SetDuplicate(dup bool)   { m.duplicate = dup }
func (m *moveRequestMetrics) SetErrorStage(s string) {
	if s != "" {
		m.errorStage = s
	}
}

// Log finalizes the span and emits the observability event.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", moveRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.move.total_ms", totalMs),
		attribute.Bool("board.move.duplicate", m.duplicate),
	}
	if m.board != "" {
		attrs = append(attrs, attribute.String("board.move.board", m.board))
	}
	if m.resultState != "" {
		attrs = append(attrs, attribute.String("board.move.result", m.resultState))
	}
	if m.flowKind != "" {
		attrs = append(attrs, attribute.String("board.move.flow_kind", m.flowKind))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.move.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.proposeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.move.propose_ms", durationToMillis(m.proposeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.move.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", moveEventName),
			attribute.String("event.domain", moveEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
