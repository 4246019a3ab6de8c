package core

import (
	"compliancedash/pkg/domain"
	"context"
	"fmt"
	"slices"
	"strings"
)

func requireText(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", domain.ValidationError{Field: field, Reason: "must not be empty"}
	}
	return v, nil
}

// CreateGeneralAlert raises a team-wide alert.
func (s *Service) CreateGeneralAlert(ctx context.Context, message, createdBy string) (domain.Alert, domain.Result, error) {
	msg, err := requireText("message", message)
	if err != nil {
		return domain.Alert{}, domain.Result{}, err
	}
	by, err := requireText("created_by", createdBy)
	if err != nil {
		return domain.Alert{}, domain.Result{}, err
	}
	return s.createAlert(ctx, "create_general_alert", domain.Alert{Kind: domain.AlertGeneral, Message: msg, CreatedBy: by})
}

// CreatePlantAlert raises an alert on a plant. createdBy may be empty.
func (s *Service) CreatePlantAlert(ctx context.Context, plantID int, message, createdBy string) (domain.Alert, domain.Result, error) {
	msg, err := requireText("message", message)
	if err != nil {
		return domain.Alert{}, domain.Result{}, err
	}
	id := plantID
	return s.createAlert(ctx, "create_plant_alert", domain.Alert{
		Kind:      domain.AlertPlant,
		PlantID:   &id,
		Message:   msg,
		CreatedBy: strings.TrimSpace(createdBy),
	})
}

func (s *Service) createAlert(ctx context.Context, op string, alert domain.Alert) (domain.Alert, domain.Result, error) {
	alert.CreatedAt = s.now()
	var created domain.Alert
	res, err := s.run(ctx, op, alert.CreatedBy, func() string { return itoa(created.ID)() }, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateAlert(alert)
		return err
	})
	return created, res, err
}

// Respond appends a response to an alert's thread.
func (s *Service) Respond(ctx context.Context, alertID int, responder, message string) (domain.Alert, domain.Result, error) {
	who, err := requireText("responder", responder)
	if err != nil {
		return domain.Alert{}, domain.Result{}, err
	}
	msg, err := requireText("message", message)
	if err != nil {
		return domain.Alert{}, domain.Result{}, err
	}
	var updated domain.Alert
	res, err := s.run(ctx, "respond_alert", who, itoa(alertID), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.AppendAlertResponse(alertID, domain.AlertResponse{Responder: who, Message: msg, CreatedAt: s.now()})
		return err
	})
	return updated, res, err
}

// Resolve marks an alert resolved or reopens it. Reopening clears the
// resolver and keeps the responses.
func (s *Service) Resolve(ctx context.Context, alertID int, resolved bool, resolvedBy string) (domain.Alert, domain.Result, error) {
	by := strings.TrimSpace(resolvedBy)
	var updated domain.Alert
	res, err := s.run(ctx, "resolve_alert", by, itoa(alertID), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.SetAlertResolved(alertID, resolved, by, s.now())
		return err
	})
	return updated, res, err
}

// DeleteAlert removes an alert permanently.
func (s *Service) DeleteAlert(ctx context.Context, alertID int, deletedBy string) (domain.Alert, domain.Result, error) {
	by := strings.TrimSpace(deletedBy)
	var removed domain.Alert
	res, err := s.run(ctx, "delete_alert", by, itoa(alertID), func(tx domain.Transaction) error {
		var err error
		removed, err = tx.DeleteAlert(alertID)
		return err
	})
	if err == nil {
		s.logger.Info("alert deleted", "alert_id", alertID, "kind", removed.Kind, "deleted_by", by)
	}
	return removed, res, err
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	// Kind restricts results to one alert kind when set.
	Kind domain.AlertKind
	// PlantID restricts results to one plant's alerts when non-zero.
	PlantID int
}

// ListAlerts returns alerts in insertion order.
func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.Alert, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.ValidationError{Field: "kind", Reason: "unknown alert kind " + string(filter.Kind)}
	}
	var alerts []domain.Alert
	err := s.view(ctx, "list_alerts", func(v domain.TransactionView) error {
		all, err := v.ListAlerts()
		if err != nil {
			return err
		}
		alerts = make([]domain.Alert, 0, len(all))
		for _, a := range all {
			if filter.Kind != "" && a.Kind != filter.Kind {
				continue
			}
			if filter.PlantID != 0 && (a.PlantID == nil || *a.PlantID != filter.PlantID) {
				continue
			}
			alerts = append(alerts, a)
		}
		return nil
	})
	return alerts, err
}

func (s *Service) requireParticipant(field, name string) (string, error) {
	n := strings.TrimSpace(name)
	if !slices.Contains(s.participants, n) {
		return "", domain.ValidationError{Field: field, Reason: fmt.Sprintf("unknown participant %q", n)}
	}
	return n, nil
}

// SendMessage appends a chat message from sender.
func (s *Service) SendMessage(ctx context.Context, sender, body string) (domain.Message, domain.Result, error) {
	from, err := s.requireParticipant("sender", sender)
	if err != nil {
		return domain.Message{}, domain.Result{}, err
	}
	text, err := requireText("body", body)
	if err != nil {
		return domain.Message{}, domain.Result{}, err
	}
	var sent domain.Message
	res, err := s.run(ctx, "send_message", from, func() string { return itoa(sent.ID)() }, func(tx domain.Transaction) error {
		var err error
		sent, err = tx.AppendMessage(domain.Message{Sender: from, Body: text, SentAt: s.now()})
		return err
	})
	return sent, res, err
}

// ListMessages returns the chat log for forUser, oldest first. Both
// participants see the same log.
func (s *Service) ListMessages(ctx context.Context, forUser string) ([]domain.Message, error) {
	if _, err := s.requireParticipant("user", forUser); err != nil {
		return nil, err
	}
	var msgs []domain.Message
	err := s.view(ctx, "list_messages", func(v domain.TransactionView) error {
		var err error
		msgs, err = v.ListMessages()
		return err
	})
	return msgs, err
}
