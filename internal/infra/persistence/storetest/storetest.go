// Package storetest holds the behavioural checks every persistent store
// backend must pass.
package storetest

import (
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

// Opener returns a fresh, empty store for a single subtest.
type Opener func(t *testing.T) domain.PersistentStore

// Run exercises the shared persistence contract against the stores produced
// by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	t.Run("ReplaceAndList", func(t *testing.T) { testReplaceAndList(t, open(t)) })
	t.Run("ReplaceRejectsBadIDs", func(t *testing.T) { testReplaceRejectsBadIDs(t, open(t)) })
	t.Run("UpdatePlant", func(t *testing.T) { testUpdatePlant(t, open(t)) })
	t.Run("Files", func(t *testing.T) { testFiles(t, open(t)) })
	t.Run("ReplaceDropsFiles", func(t *testing.T) { testReplaceDropsFiles(t, open(t)) })
	t.Run("Alerts", func(t *testing.T) { testAlerts(t, open(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
}

// Seed replaces the store content with plants.
func Seed(t *testing.T, store domain.PersistentStore, plants ...domain.Plant) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.ReplacePlants(plants)
	}); err != nil {
		t.Fatalf("seed plants: %v", err)
	}
}

func listPlants(t *testing.T, store domain.PersistentStore) []domain.Plant {
	t.Helper()
	var plants []domain.Plant
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		plants, err = v.ListPlants()
		return err
	}); err != nil {
		t.Fatalf("list plants: %v", err)
	}
	return plants
}

func testReplaceAndList(t *testing.T, store domain.PersistentStore) {
	Seed(t, store,
		domain.Plant{ID: 2, Name: "Beta", FullAddress: "2 Side St, Austin, TX", AddressOnly: "2 Side St", State: "TX", FilingFee: 150.5},
		domain.Plant{ID: 1, Name: "Alpha", State: "OH", ReportingStatus: domain.DefaultReportingStatus},
	)
	plants := listPlants(t, store)
	if len(plants) != 2 {
		t.Fatalf("expected 2 plants, got %d", len(plants))
	}
	if plants[0].ID != 1 || plants[1].ID != 2 {
		t.Fatalf("expected plants ordered by id, got %d,%d", plants[0].ID, plants[1].ID)
	}
	if plants[1].FilingFee != 150.5 || plants[1].AddressOnly != "2 Side St" {
		t.Fatalf("unexpected plant round trip: %+v", plants[1])
	}
	if plants[0].Files == nil || len(plants[0].Files) != 0 {
		t.Fatalf("expected empty non-nil files, got %#v", plants[0].Files)
	}

	Seed(t, store, domain.Plant{ID: 7, Name: "Gamma"})
	plants = listPlants(t, store)
	if len(plants) != 1 || plants[0].ID != 7 {
		t.Fatalf("expected replace to discard previous plants, got %+v", plants)
	}
}

func testReplaceRejectsBadIDs(t *testing.T, store domain.PersistentStore) {
	Seed(t, store, domain.Plant{ID: 1, Name: "Keep"})
	for _, plants := range [][]domain.Plant{
		{{ID: 0}},
		{{ID: 3}, {ID: 3}},
	} {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			return tx.ReplacePlants(plants)
		})
		if !domain.IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", plants, err)
		}
	}
	plants := listPlants(t, store)
	if len(plants) != 1 || plants[0].Name != "Keep" {
		t.Fatalf("expected original plants after rejected replace, got %+v", plants)
	}
}

func testUpdatePlant(t *testing.T, store domain.PersistentStore) {
	Seed(t, store, domain.Plant{ID: 1, Name: "Alpha", City: "Dayton", Notes: "old"})
	notes, fee := "new", 75.0
	var updated domain.Plant
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdatePlant(1, domain.PlantUpdate{Notes: &notes, FilingFee: &fee})
		return err
	})
	if err != nil {
		t.Fatalf("UpdatePlant: %v", err)
	}
	if res.Count(domain.EntityPlant) != 1 {
		t.Fatalf("expected one plant change, got %+v", res.Changes)
	}
	if updated.Notes != "new" || updated.FilingFee != 75 || updated.City != "Dayton" || updated.ID != 1 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	plants := listPlants(t, store)
	if plants[0].Notes != "new" || plants[0].Name != "Alpha" {
		t.Fatalf("update not persisted: %+v", plants[0])
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdatePlant(99, domain.PlantUpdate{Notes: &notes})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing plant, got %v", err)
	}
}

func addFile(t *testing.T, store domain.PersistentStore, plantID int, f domain.PlantFile) (domain.PlantFile, error) {
	t.Helper()
	var out domain.PlantFile
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		out, err = tx.AddPlantFile(plantID, f)
		return err
	})
	return out, err
}

func testFiles(t *testing.T, store domain.PersistentStore) {
	Seed(t, store, domain.Plant{ID: 1, Name: "Alpha"}, domain.Plant{ID: 2, Name: "Beta"})
	early := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	late := early.Add(time.Hour)

	a, err := addFile(t, store, 1, domain.PlantFile{OriginalName: "a.pdf", StoredName: "a_1.pdf", Size: 10, UploadedAt: early, Path: "plant_1/a_1.pdf"})
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	b, err := addFile(t, store, 1, domain.PlantFile{OriginalName: "b.pdf", StoredName: "b_1.pdf", Size: 20, UploadedAt: late, Path: "plant_1/b_1.pdf"})
	if err != nil {
		t.Fatalf("add b: %v", err)
	}
	c, err := addFile(t, store, 1, domain.PlantFile{OriginalName: "c.pdf", StoredName: "c_1.pdf", Size: 30, UploadedAt: late, Path: "plant_1/c_1.pdf"})
	if err != nil {
		t.Fatalf("add c: %v", err)
	}
	if a.ID <= 0 || b.ID <= a.ID || c.ID <= b.ID {
		t.Fatalf("expected increasing file ids, got %d %d %d", a.ID, b.ID, c.ID)
	}
	if a.PlantID != 1 {
		t.Fatalf("expected plant id set on file, got %d", a.PlantID)
	}
	if _, err := addFile(t, store, 42, domain.PlantFile{OriginalName: "x"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing plant, got %v", err)
	}

	var files []domain.PlantFile
	var found domain.PlantFile
	var ok, otherOK bool
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		if files, err = v.ListPlantFiles(1); err != nil {
			return err
		}
		if found, ok, err = v.FindPlantFile(1, a.ID); err != nil {
			return err
		}
		_, otherOK, err = v.FindPlantFile(2, a.ID)
		return err
	}); err != nil {
		t.Fatalf("view files: %v", err)
	}
	if len(files) != 3 || files[0].ID != c.ID || files[1].ID != b.ID || files[2].ID != a.ID {
		t.Fatalf("expected newest first with id tiebreak, got %+v", files)
	}
	if !ok || found.OriginalName != "a.pdf" || found.Size != 10 || !found.UploadedAt.Equal(early) {
		t.Fatalf("unexpected found file %+v ok=%v", found, ok)
	}
	if otherOK {
		t.Fatalf("file must not be visible under another plant")
	}

	var removed domain.PlantFile
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		removed, err = tx.DeletePlantFile(1, b.ID)
		return err
	}); err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if removed.Path != "plant_1/b_1.pdf" {
		t.Fatalf("expected deleted metadata returned, got %+v", removed)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.DeletePlantFile(1, b.ID)
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	plants := listPlants(t, store)
	if len(plants[0].Files) != 2 {
		t.Fatalf("expected 2 files embedded in plant, got %d", len(plants[0].Files))
	}
}

func testReplaceDropsFiles(t *testing.T, store domain.PersistentStore) {
	Seed(t, store, domain.Plant{ID: 1})
	first, err := addFile(t, store, 1, domain.PlantFile{OriginalName: "a.pdf", StoredName: "a", Path: "plant_1/a"})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	Seed(t, store, domain.Plant{ID: 1})
	plants := listPlants(t, store)
	if len(plants[0].Files) != 0 {
		t.Fatalf("expected files discarded on replace, got %+v", plants[0].Files)
	}
	second, err := addFile(t, store, 1, domain.PlantFile{OriginalName: "b.pdf", StoredName: "b", Path: "plant_1/b"})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected file ids not reused across replace, got %d after %d", second.ID, first.ID)
	}
}

func testAlerts(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	Seed(t, store, domain.Plant{ID: 5, Name: "Alpha"})
	plantID := 5
	var general, scoped domain.Alert
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if general, err = tx.CreateAlert(domain.Alert{Kind: domain.AlertGeneral, Message: "deadline", CreatedBy: "team"}); err != nil {
			return err
		}
		scoped, err = tx.CreateAlert(domain.Alert{Kind: domain.AlertPlant, PlantID: &plantID, Message: "missing permit", CreatedBy: "client"})
		return err
	}); err != nil {
		t.Fatalf("create alerts: %v", err)
	}
	if general.ID <= 0 || scoped.ID <= general.ID || general.CreatedAt.IsZero() {
		t.Fatalf("unexpected alert ids %+v %+v", general, scoped)
	}
	missing := 404
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAlert(domain.Alert{Kind: domain.AlertPlant, PlantID: &missing, Message: "x"})
		return err
	}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for alert on missing plant, got %v", err)
	}

	resolvedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var withReply, resolved, reopened domain.Alert
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if withReply, err = tx.AppendAlertResponse(scoped.ID, domain.AlertResponse{Responder: "team", Message: "on it"}); err != nil {
			return err
		}
		resolved, err = tx.SetAlertResolved(scoped.ID, true, "team", resolvedAt)
		return err
	}); err != nil {
		t.Fatalf("respond and resolve: %v", err)
	}
	if len(withReply.Responses) != 1 || withReply.Responses[0].Message != "on it" || withReply.Responses[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected responses %+v", withReply.Responses)
	}
	if !resolved.Resolved || resolved.ResolvedBy != "team" || resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("unexpected resolved alert %+v", resolved)
	}
	if resolved.PlantID == nil || *resolved.PlantID != 5 {
		t.Fatalf("expected plant id kept, got %v", resolved.PlantID)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		reopened, err = tx.SetAlertResolved(scoped.ID, false, "ignored", time.Time{})
		return err
	}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Resolved || reopened.ResolvedBy != "" || reopened.ResolvedAt != nil {
		t.Fatalf("expected reopen to clear resolution, got %+v", reopened)
	}

	// plant alerts outlive a bulk replace
	Seed(t, store, domain.Plant{ID: 9})
	var alerts []domain.Alert
	if err := store.View(ctx, func(v domain.TransactionView) error {
		var err error
		alerts, err = v.ListAlerts()
		return err
	}); err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 2 || alerts[0].ID != general.ID || len(alerts[1].Responses) != 1 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if alerts[0].Responses == nil {
		t.Fatalf("expected non-nil responses")
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.DeleteAlert(scoped.ID)
		return err
	}); err != nil {
		t.Fatalf("delete alert: %v", err)
	}
	for _, op := range []func(tx domain.Transaction) error{
		func(tx domain.Transaction) error { _, err := tx.DeleteAlert(scoped.ID); return err },
		func(tx domain.Transaction) error {
			_, err := tx.AppendAlertResponse(scoped.ID, domain.AlertResponse{Responder: "team"})
			return err
		},
		func(tx domain.Transaction) error {
			_, err := tx.SetAlertResolved(scoped.ID, true, "team", time.Time{})
			return err
		},
	} {
		if _, err := store.RunInTransaction(ctx, op); !domain.IsNotFound(err) {
			t.Fatalf("expected not found for deleted alert, got %v", err)
		}
	}
	var found bool
	if err := store.View(ctx, func(v domain.TransactionView) error {
		var err error
		_, found, err = v.FindAlert(general.ID)
		return err
	}); err != nil || !found {
		t.Fatalf("expected general alert still present, found=%v err=%v", found, err)
	}
}

func testMessages(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	sent := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	var first, second domain.Message
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if first, err = tx.AppendMessage(domain.Message{Sender: "team", Body: "hi", SentAt: sent}); err != nil {
			return err
		}
		second, err = tx.AppendMessage(domain.Message{Sender: "client", Body: "hello"})
		return err
	}); err != nil {
		t.Fatalf("append messages: %v", err)
	}
	if first.ID <= 0 || second.ID <= first.ID || second.SentAt.IsZero() {
		t.Fatalf("unexpected messages %+v %+v", first, second)
	}
	var msgs []domain.Message
	if err := store.View(ctx, func(v domain.TransactionView) error {
		var err error
		msgs, err = v.ListMessages()
		return err
	}); err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "hi" || !msgs[0].SentAt.Equal(sent) || msgs[1].Sender != "client" {
		t.Fatalf("unexpected message log %+v", msgs)
	}
}

func testRollback(t *testing.T, store domain.PersistentStore) {
	Seed(t, store, domain.Plant{ID: 1, Name: "Alpha"})
	boom := errors.New("boom")
	name := "changed"
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.UpdatePlant(1, domain.PlantUpdate{Name: &name}); err != nil {
			return err
		}
		if _, err := tx.AppendMessage(domain.Message{Sender: "team", Body: "lost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	plants := listPlants(t, store)
	if plants[0].Name != "Alpha" {
		t.Fatalf("expected rollback of plant update, got %+v", plants[0])
	}
	var msgs []domain.Message
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		msgs, err = v.ListMessages()
		return err
	})
	if len(msgs) != 0 {
		t.Fatalf("expected rollback of message append, got %+v", msgs)
	}
}
