package core

import (
	"compliancedash/pkg/domain"
	"context"
	"testing"
)

func TestAlertLifecycle(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	general, _, err := svc.CreateGeneralAlert(ctx, "  Filing window opens Monday ", "team")
	if err != nil {
		t.Fatalf("create general alert: %v", err)
	}
	if general.Kind != domain.AlertGeneral || general.Message != "Filing window opens Monday" || general.PlantID != nil {
		t.Fatalf("unexpected general alert %+v", general)
	}
	plantAlert, _, err := svc.CreatePlantAlert(ctx, 2, "Missing SDS sheets", "")
	if err != nil {
		t.Fatalf("create plant alert: %v", err)
	}
	if plantAlert.Kind != domain.AlertPlant || plantAlert.PlantID == nil || *plantAlert.PlantID != 2 {
		t.Fatalf("unexpected plant alert %+v", plantAlert)
	}

	if _, _, err := svc.Respond(ctx, plantAlert.ID, "client", "Uploading today"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	resolved, _, err := svc.Resolve(ctx, plantAlert.ID, true, "team")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedBy != "team" || resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(fixedNow) {
		t.Fatalf("unexpected resolved alert %+v", resolved)
	}
	reopened, _, err := svc.Resolve(ctx, plantAlert.ID, false, "client")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Resolved || reopened.ResolvedBy != "" || reopened.ResolvedAt != nil {
		t.Fatalf("expected reopened alert cleared, got %+v", reopened)
	}
	if len(reopened.Responses) != 1 || reopened.Responses[0].Responder != "client" || reopened.Responses[0].Message != "Uploading today" {
		t.Fatalf("expected response history preserved, got %+v", reopened.Responses)
	}

	all, err := svc.ListAlerts(ctx, AlertFilter{})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(all) != 2 || all[0].ID != general.ID || all[1].ID != plantAlert.ID {
		t.Fatalf("expected insertion order, got %+v", all)
	}
	plantOnly, err := svc.ListAlerts(ctx, AlertFilter{Kind: domain.AlertPlant})
	if err != nil || len(plantOnly) != 1 || plantOnly[0].ID != plantAlert.ID {
		t.Fatalf("expected plant alert only, got %+v (%v)", plantOnly, err)
	}
	byPlant, err := svc.ListAlerts(ctx, AlertFilter{PlantID: 3})
	if err != nil || len(byPlant) != 0 {
		t.Fatalf("expected no alerts for plant 3, got %+v (%v)", byPlant, err)
	}

	if _, _, err := svc.DeleteAlert(ctx, general.ID, "team"); err != nil {
		t.Fatalf("delete alert: %v", err)
	}
	if _, _, err := svc.DeleteAlert(ctx, general.ID, "team"); !domain.IsNotFound(err) {
		t.Fatalf("expected delete twice to be not found, got %v", err)
	}
	if _, _, err := svc.Respond(ctx, general.ID, "team", "late"); !domain.IsNotFound(err) {
		t.Fatalf("expected respond on deleted alert not found, got %v", err)
	}
}

func TestAlertValidation(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		fn   func() error
	}{
		{"general empty message", func() error { _, _, err := svc.CreateGeneralAlert(ctx, " ", "team"); return err }},
		{"general no creator", func() error { _, _, err := svc.CreateGeneralAlert(ctx, "hi", ""); return err }},
		{"plant empty message", func() error { _, _, err := svc.CreatePlantAlert(ctx, 1, "", "team"); return err }},
		{"respond no responder", func() error { _, _, err := svc.Respond(ctx, 1, "", "x"); return err }},
		{"respond empty message", func() error { _, _, err := svc.Respond(ctx, 1, "team", ""); return err }},
		{"bad kind filter", func() error { _, err := svc.ListAlerts(ctx, AlertFilter{Kind: "urgent"}); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if _, _, err := svc.CreatePlantAlert(ctx, 42, "x", "team"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for unknown plant, got %v", err)
	}
}

func TestMessagesBetweenParticipants(t *testing.T) {
	svc, _, _ := newTestService(t, WithParticipants("ops", "acme"))
	ctx := context.Background()
	if _, _, err := svc.SendMessage(ctx, "ops", "Report is ready"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, _, err := svc.SendMessage(ctx, " acme ", "Thanks"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, err := svc.ListMessages(ctx, "acme")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Sender != "ops" || msgs[1].Sender != "acme" || msgs[1].Body != "Thanks" {
		t.Fatalf("unexpected log %+v", msgs)
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Fatalf("expected increasing ids, got %d then %d", msgs[0].ID, msgs[1].ID)
	}

	if _, _, err := svc.SendMessage(ctx, "team", "hi"); !domain.IsValidation(err) {
		t.Fatalf("expected unknown sender rejected, got %v", err)
	}
	if _, _, err := svc.SendMessage(ctx, "ops", "  "); !domain.IsValidation(err) {
		t.Fatalf("expected empty body rejected, got %v", err)
	}
	if _, err := svc.ListMessages(ctx, "nobody"); !domain.IsValidation(err) {
		t.Fatalf("expected unknown reader rejected, got %v", err)
	}
}

func TestDefaultParticipants(t *testing.T) {
	svc, _, _ := newTestService(t, WithParticipants("", ""))
	got := svc.Participants()
	if len(got) != 2 || got[0] != "team" || got[1] != "client" {
		t.Fatalf("expected default participants, got %v", got)
	}
}
