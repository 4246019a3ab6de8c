package core

import (
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	ended map[string][]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s captureSpan) End(err error) {
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

func TestServiceObservabilityHooks(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &captureLogger{}
	svc, _, _ := newSeededService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(log))
	ctx := context.Background()

	alert, _, err := svc.CreateGeneralAlert(ctx, "hello", "team")
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if !audit.has("create_general_alert", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == "1" && e.Actor == "team" && e.Entity == domain.EntityAlert && e.Action == domain.ActionCreate && e.Timestamp.Equal(fixedNow)
	}) {
		t.Fatalf("expected create audit entry with id, got %+v", audit.entries)
	}
	if alert.ID != 1 {
		t.Fatalf("expected alert id 1, got %d", alert.ID)
	}
	if _, _, err := svc.UpdatePlant(ctx, 99, domain.PlantUpdate{Notes: ptr("x")}); err == nil {
		t.Fatalf("expected update failure")
	}
	if !audit.has("update_plant", AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("expected failed update audited, got %+v", audit.entries)
	}
	if _, err := svc.ListPlants(ctx); err != nil {
		t.Fatalf("list plants: %v", err)
	}
	if audit.has("list_plants", AuditStatusSuccess, nil) {
		t.Fatalf("reads must not be audited")
	}

	if !metrics.has("create_general_alert", true) || !metrics.has("update_plant", false) || !metrics.has("list_plants", true) {
		t.Fatalf("unexpected metrics calls %+v", metrics.calls)
	}
	if errs := tracer.ended["update_plant"]; len(errs) != 1 || errs[0] == nil {
		t.Fatalf("expected failed span for update_plant, got %v", errs)
	}
	if errs := tracer.ended["list_plants"]; len(errs) != 1 || errs[0] != nil {
		t.Fatalf("expected successful span for list_plants, got %v", errs)
	}
	if !log.has("d:core operation rejected") {
		t.Fatalf("expected not found logged at debug, got %v", log.calls)
	}
}

func TestServiceRunLogsStorageFailure(t *testing.T) {
	_, store, _ := newSeededService(t)
	log := &captureLogger{}
	svc := NewService(failingTxStore{Store: store, err: domain.StorageError{Op: "commit", Err: errors.New("io")}}, nil, WithLogger(log))
	if _, err := svc.BulkReplace(context.Background(), samplePlants()); err == nil {
		t.Fatalf("expected failure")
	}
	if !log.has("e:core operation failed") {
		t.Fatalf("expected error log, got %v", log.calls)
	}
}

func TestDefaultServiceOptions(t *testing.T) {
	opts := defaultServiceOptions()
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("expected defaults populated")
	}
	if opts.maxFileBytes != DefaultMaxFileBytes {
		t.Fatalf("unexpected default max file bytes %d", opts.maxFileBytes)
	}
	_ = opts.clock.Now()
	opts.logger.Error("noop", "k", 1)
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "noop", true, 0)
	ctx, span := opts.tracer.Start(context.Background(), "noop")
	if ctx == nil {
		t.Fatalf("expected context from tracer")
	}
	span.End(nil)
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewService(nil, nil, WithClock(nil), WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil), WithMaxFileBytes(0))
	if svc.clock == nil || svc.logger == nil || svc.audit == nil || svc.metrics == nil || svc.tracer == nil || svc.Blobs() == nil {
		t.Fatalf("expected defaults retained")
	}
	if svc.MaxFileBytes() != DefaultMaxFileBytes {
		t.Fatalf("expected default ceiling, got %d", svc.MaxFileBytes())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc, _, _ := newSeededService(t, WithMetricsRecorder(rec))
	ctx := context.Background()
	if _, _, err := svc.UpdatePlant(ctx, 1, domain.PlantUpdate{Notes: ptr("called")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, _, err := svc.UpdatePlant(ctx, 77, domain.PlantUpdate{Notes: ptr("x")}); err == nil {
		t.Fatalf("expected failure")
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("update_plant", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("update_plant", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(rec.changes.WithLabelValues("plant", "update")); got != 1 {
		t.Fatalf("expected 1 plant update change, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
	rec.Observe(ctx, "", true, time.Second)
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestLogAuditRecorderAndTracer(t *testing.T) {
	log := &captureLogger{}
	rec := NewLogAuditRecorder(log)
	rec.Record(context.Background(), AuditEntry{Operation: "delete_alert", Status: AuditStatusSuccess, EntityID: "3", Actor: "team"})
	rec.Record(context.Background(), AuditEntry{Operation: "delete_alert", Status: AuditStatusError, Error: "missing"})
	if !log.has("i:audit") || !log.has("w:audit") {
		t.Fatalf("expected info and warn audit lines, got %v", log.calls)
	}
	tracer := NewLogTracer(log)
	_, span := tracer.Start(context.Background(), "op")
	span.End(errors.New("boom"))
	if !log.has("d:span") {
		t.Fatalf("expected span line, got %v", log.calls)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{})
	_, span = NewLogTracer(nil).Start(context.Background(), "noop")
	span.End(nil)
}
