// Package core implements the compliance dashboard services: plant records,
// file attachments, the alert/message ledger and summary statistics. Each
// operation runs inside one store transaction and is logged, timed, traced
// and audited through the configured observability hooks.
package core

import (
	"compliancedash/internal/blob"
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"slices"
	"strconv"
	"time"
)

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// operations lists the mutating operations reported to the audit recorder.
var operations = map[string]operationMeta{
	"bulk_replace":         {domain.EntityPlant, domain.ActionReplace},
	"update_plant":         {domain.EntityPlant, domain.ActionUpdate},
	"attach_file":          {domain.EntityPlantFile, domain.ActionCreate},
	"delete_file":          {domain.EntityPlantFile, domain.ActionDelete},
	"create_general_alert": {domain.EntityAlert, domain.ActionCreate},
	"create_plant_alert":   {domain.EntityAlert, domain.ActionCreate},
	"respond_alert":        {domain.EntityAlert, domain.ActionUpdate},
	"resolve_alert":        {domain.EntityAlert, domain.ActionUpdate},
	"delete_alert":         {domain.EntityAlert, domain.ActionDelete},
	"send_message":         {domain.EntityMessage, domain.ActionCreate},
}

// Service exposes the dashboard operations over a persistent store and a
// blob store.
type Service struct {
	store        domain.PersistentStore
	blobs        blob.Store
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	maxFileBytes int64
	participants []string
}

// NewService constructs a service backed by store. Attachments are kept in
// blobs; a nil blobs falls back to an in-memory blob store.
func NewService(store domain.PersistentStore, blobs blob.Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if blobs == nil {
		blobs = blob.NewMemory()
	}
	return &Service{
		store:        store,
		blobs:        blobs,
		clock:        o.clock,
		logger:       o.logger,
		audit:        o.audit,
		metrics:      o.metrics,
		tracer:       o.tracer,
		maxFileBytes: o.maxFileBytes,
		participants: slices.Clone(o.participants),
	}
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Blobs returns the attachment blob store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Participants returns the configured chat users.
func (s *Service) Participants() []string { return slices.Clone(s.participants) }

// MaxFileBytes returns the attachment size ceiling.
func (s *Service) MaxFileBytes() int64 { return s.maxFileBytes }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// run executes fn in a transaction and reports the outcome. entityID is
// evaluated after fn returns so created ids can be audited.
func (s *Service) run(ctx context.Context, op, actor string, entityID func() string, fn func(domain.Transaction) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(op, err, duration)
		s.recordAudit(ctx, op, "", actor, err, duration)
		return res, err
	}
	if cr, ok := s.metrics.(ChangeRecorder); ok {
		cr.RecordChanges(ctx, res)
	}
	s.logger.Debug("core operation committed", "operation", op, "changes", len(res.Changes), "duration_ms", duration.Milliseconds())
	id := ""
	if entityID != nil {
		id = entityID()
	}
	s.recordAudit(ctx, op, id, actor, nil, duration)
	return res, nil
}

// view executes a read-only fn and reports timing and failures.
func (s *Service) view(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := s.store.View(ctx, fn)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(op, err, duration)
	}
	return err
}

func (s *Service) logFailure(op string, err error, duration time.Duration) {
	var se domain.StorageError
	switch {
	case errors.As(err, &se):
		s.logger.Error("core operation failed", "operation", op, "storage_op", se.Op, "error", err, "duration_ms", duration.Milliseconds())
	case domain.IsNotFound(err), domain.IsValidation(err):
		s.logger.Debug("core operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("core operation failed", "operation", op, "error", err, "duration_ms", duration.Milliseconds())
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID, actor string, err error, duration time.Duration) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func itoa(id int) func() string {
	return func() string { return strconv.Itoa(id) }
}
