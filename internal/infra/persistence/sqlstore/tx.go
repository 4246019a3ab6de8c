package sqlstore

import (
	"compliancedash/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const plantColumns = `id, plant_name, full_address, address_only, city, state, reporter_2025,
	reporting_status, filing_fee, additional_fee, additional_steps, notes, client_notes`

const fileColumns = `id, plant_id, original_name, stored_name, file_size, content_type, upload_date, path`

const alertColumns = `id, kind, plant_id, message, created_by, created_at, resolved, resolved_by, resolved_at`

type view struct {
	ctx context.Context
	q   queryer
	d   Dialect
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlant(r rowScanner) (domain.Plant, error) {
	var p domain.Plant
	err := r.Scan(&p.ID, &p.Name, &p.FullAddress, &p.AddressOnly, &p.City, &p.State, &p.Reporter2025,
		&p.ReportingStatus, &p.FilingFee, &p.AdditionalFee, &p.AdditionalSteps, &p.Notes, &p.ClientNotes)
	return p, err
}

func scanFile(r rowScanner) (domain.PlantFile, error) {
	var f domain.PlantFile
	err := r.Scan(&f.ID, &f.PlantID, &f.OriginalName, &f.StoredName, &f.Size, &f.ContentType, &f.UploadedAt, &f.Path)
	f.UploadedAt = f.UploadedAt.UTC()
	return f, err
}

func scanAlert(r rowScanner) (domain.Alert, error) {
	var (
		a          domain.Alert
		kind       string
		plantID    sql.NullInt64
		resolvedAt sql.NullTime
	)
	if err := r.Scan(&a.ID, &kind, &plantID, &a.Message, &a.CreatedBy, &a.CreatedAt, &a.Resolved, &a.ResolvedBy, &resolvedAt); err != nil {
		return domain.Alert{}, err
	}
	a.Kind = domain.AlertKind(kind)
	a.CreatedAt = a.CreatedAt.UTC()
	if plantID.Valid {
		id := int(plantID.Int64)
		a.PlantID = &id
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		a.ResolvedAt = &at
	}
	a.Responses = []domain.AlertResponse{}
	return a, nil
}

func (v view) ListPlants() ([]domain.Plant, error) {
	rows, err := v.q.QueryContext(v.ctx, `SELECT `+plantColumns+` FROM plants ORDER BY id`)
	if err != nil {
		return nil, storageErr("list plants", err)
	}
	defer func() { _ = rows.Close() }()
	var plants []domain.Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, storageErr("scan plant", err)
		}
		plants = append(plants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate plants", err)
	}
	files, err := v.filesByPlant()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Plant, 0, len(plants))
	for _, p := range plants {
		p.Files = files[p.ID]
		if p.Files == nil {
			p.Files = []domain.PlantFile{}
		}
		out = append(out, p)
	}
	return out, nil
}

func (v view) filesByPlant() (map[int][]domain.PlantFile, error) {
	rows, err := v.q.QueryContext(v.ctx, `SELECT `+fileColumns+` FROM plant_files ORDER BY upload_date DESC, id DESC`)
	if err != nil {
		return nil, storageErr("list files", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int][]domain.PlantFile)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, storageErr("scan file", err)
		}
		out[f.PlantID] = append(out[f.PlantID], f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate files", err)
	}
	return out, nil
}

func (v view) FindPlant(id int) (domain.Plant, bool, error) {
	row := v.q.QueryRowContext(v.ctx, v.d.Rebind(`SELECT `+plantColumns+` FROM plants WHERE id = ?`), id)
	p, err := scanPlant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plant{}, false, nil
	}
	if err != nil {
		return domain.Plant{}, false, storageErr("find plant", err)
	}
	files, err := v.ListPlantFiles(id)
	if err != nil {
		return domain.Plant{}, false, err
	}
	p.Files = files
	return p, true, nil
}

func (v view) ListPlantFiles(plantID int) ([]domain.PlantFile, error) {
	rows, err := v.q.QueryContext(v.ctx, v.d.Rebind(`SELECT `+fileColumns+` FROM plant_files WHERE plant_id = ? ORDER BY upload_date DESC, id DESC`), plantID)
	if err != nil {
		return nil, storageErr("list plant files", err)
	}
	defer func() { _ = rows.Close() }()
	out := []domain.PlantFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, storageErr("scan file", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate plant files", err)
	}
	return out, nil
}

func (v view) FindPlantFile(plantID, fileID int) (domain.PlantFile, bool, error) {
	row := v.q.QueryRowContext(v.ctx, v.d.Rebind(`SELECT `+fileColumns+` FROM plant_files WHERE plant_id = ? AND id = ?`), plantID, fileID)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlantFile{}, false, nil
	}
	if err != nil {
		return domain.PlantFile{}, false, storageErr("find file", err)
	}
	return f, true, nil
}

func (v view) ListAlerts() ([]domain.Alert, error) {
	rows, err := v.q.QueryContext(v.ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY id`)
	if err != nil {
		return nil, storageErr("list alerts", err)
	}
	defer func() { _ = rows.Close() }()
	alerts := []domain.Alert{}
	index := make(map[int]int)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, storageErr("scan alert", err)
		}
		index[a.ID] = len(alerts)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate alerts", err)
	}
	if len(alerts) == 0 {
		return alerts, nil
	}
	resp, err := v.q.QueryContext(v.ctx, `SELECT alert_id, responder, message, created_at FROM alert_responses ORDER BY id`)
	if err != nil {
		return nil, storageErr("list responses", err)
	}
	defer func() { _ = resp.Close() }()
	for resp.Next() {
		var (
			alertID int
			r       domain.AlertResponse
		)
		if err := resp.Scan(&alertID, &r.Responder, &r.Message, &r.CreatedAt); err != nil {
			return nil, storageErr("scan response", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		if i, ok := index[alertID]; ok {
			alerts[i].Responses = append(alerts[i].Responses, r)
		}
	}
	if err := resp.Err(); err != nil {
		return nil, storageErr("iterate responses", err)
	}
	return alerts, nil
}

func (v view) FindAlert(id int) (domain.Alert, bool, error) {
	row := v.q.QueryRowContext(v.ctx, v.d.Rebind(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, false, nil
	}
	if err != nil {
		return domain.Alert{}, false, storageErr("find alert", err)
	}
	rows, err := v.q.QueryContext(v.ctx, v.d.Rebind(`SELECT responder, message, created_at FROM alert_responses WHERE alert_id = ? ORDER BY id`), id)
	if err != nil {
		return domain.Alert{}, false, storageErr("list responses", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var r domain.AlertResponse
		if err := rows.Scan(&r.Responder, &r.Message, &r.CreatedAt); err != nil {
			return domain.Alert{}, false, storageErr("scan response", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		a.Responses = append(a.Responses, r)
	}
	if err := rows.Err(); err != nil {
		return domain.Alert{}, false, storageErr("iterate responses", err)
	}
	return a, true, nil
}

func (v view) ListMessages() ([]domain.Message, error) {
	rows, err := v.q.QueryContext(v.ctx, `SELECT id, sender, body, sent_at FROM messages ORDER BY id`)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer func() { _ = rows.Close() }()
	out := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, storageErr("scan message", err)
		}
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate messages", err)
	}
	return out, nil
}

type transaction struct {
	view
	now     time.Time
	changes []domain.Change
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, id int) {
	tx.changes = append(tx.changes, domain.Change{Entity: entity, Action: action, ID: id})
}

func (tx *transaction) exec(op, query string, args ...any) (sql.Result, error) {
	res, err := tx.q.ExecContext(tx.ctx, tx.d.Rebind(query), args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return res, nil
}

func (tx *transaction) insertReturningID(op, query string, args ...any) (int, error) {
	var id int
	if err := tx.q.QueryRowContext(tx.ctx, tx.d.Rebind(query+` RETURNING id`), args...).Scan(&id); err != nil {
		return 0, storageErr(op, err)
	}
	return id, nil
}

func (tx *transaction) ReplacePlants(plants []domain.Plant) error {
	if _, err := tx.exec("clear files", `DELETE FROM plant_files`); err != nil {
		return err
	}
	if _, err := tx.exec("clear plants", `DELETE FROM plants`); err != nil {
		return err
	}
	seen := make(map[int]struct{}, len(plants))
	for i, p := range plants {
		if p.ID <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("plants[%d].id", i), Reason: "must be positive"}
		}
		if _, dup := seen[p.ID]; dup {
			return domain.ValidationError{Field: fmt.Sprintf("plants[%d].id", i), Reason: fmt.Sprintf("duplicate id %d", p.ID)}
		}
		seen[p.ID] = struct{}{}
		if _, err := tx.exec(fmt.Sprintf("insert plant %d", p.ID), `INSERT INTO plants (`+plantColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.FullAddress, p.AddressOnly, p.City, p.State, p.Reporter2025,
			p.ReportingStatus, p.FilingFee, p.AdditionalFee, p.AdditionalSteps, p.Notes, p.ClientNotes); err != nil {
			return err
		}
	}
	if tx.d.ResetPlantSequence != "" {
		if _, err := tx.exec("reset plant sequence", tx.d.ResetPlantSequence); err != nil {
			return err
		}
	}
	tx.recordChange(domain.EntityPlant, domain.ActionReplace, 0)
	return nil
}

func (tx *transaction) UpdatePlant(id int, update domain.PlantUpdate) (domain.Plant, error) {
	current, ok, err := tx.FindPlant(id)
	if err != nil {
		return domain.Plant{}, err
	}
	if !ok {
		return domain.Plant{}, domain.NotFound(domain.EntityPlant, id)
	}
	update.Apply(&current)
	if _, err := tx.exec("update plant", `UPDATE plants SET
			plant_name = ?, full_address = ?, address_only = ?, city = ?, state = ?,
			reporter_2025 = ?, reporting_status = ?, filing_fee = ?, additional_fee = ?,
			additional_steps = ?, notes = ?, client_notes = ?
		WHERE id = ?`,
		current.Name, current.FullAddress, current.AddressOnly, current.City, current.State,
		current.Reporter2025, current.ReportingStatus, current.FilingFee, current.AdditionalFee,
		current.AdditionalSteps, current.Notes, current.ClientNotes, id); err != nil {
		return domain.Plant{}, err
	}
	tx.recordChange(domain.EntityPlant, domain.ActionUpdate, id)
	return current, nil
}

func (tx *transaction) requirePlant(id int) error {
	var one int
	err := tx.q.QueryRowContext(tx.ctx, tx.d.Rebind(`SELECT 1 FROM plants WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(domain.EntityPlant, id)
	}
	if err != nil {
		return storageErr("check plant", err)
	}
	return nil
}

func (tx *transaction) AddPlantFile(plantID int, file domain.PlantFile) (domain.PlantFile, error) {
	if err := tx.requirePlant(plantID); err != nil {
		return domain.PlantFile{}, err
	}
	file.PlantID = plantID
	if file.UploadedAt.IsZero() {
		file.UploadedAt = tx.now
	}
	file.UploadedAt = file.UploadedAt.UTC()
	id, err := tx.insertReturningID("insert file", `INSERT INTO plant_files
		(plant_id, original_name, stored_name, file_size, content_type, upload_date, path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plantID, file.OriginalName, file.StoredName, file.Size, file.ContentType, file.UploadedAt, file.Path)
	if err != nil {
		return domain.PlantFile{}, err
	}
	file.ID = id
	tx.recordChange(domain.EntityPlantFile, domain.ActionCreate, id)
	return file, nil
}

func (tx *transaction) DeletePlantFile(plantID, fileID int) (domain.PlantFile, error) {
	f, ok, err := tx.FindPlantFile(plantID, fileID)
	if err != nil {
		return domain.PlantFile{}, err
	}
	if !ok {
		return domain.PlantFile{}, domain.NotFound(domain.EntityPlantFile, fileID)
	}
	if _, err := tx.exec("delete file", `DELETE FROM plant_files WHERE plant_id = ? AND id = ?`, plantID, fileID); err != nil {
		return domain.PlantFile{}, err
	}
	tx.recordChange(domain.EntityPlantFile, domain.ActionDelete, fileID)
	return f, nil
}

func (tx *transaction) CreateAlert(alert domain.Alert) (domain.Alert, error) {
	var plantID any
	if alert.PlantID != nil {
		if err := tx.requirePlant(*alert.PlantID); err != nil {
			return domain.Alert{}, err
		}
		plantID = *alert.PlantID
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = tx.now
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	var resolvedAt any
	if alert.ResolvedAt != nil {
		resolvedAt = alert.ResolvedAt.UTC()
	}
	id, err := tx.insertReturningID("insert alert", `INSERT INTO alerts
		(kind, plant_id, message, created_by, created_at, resolved, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(alert.Kind), plantID, alert.Message, alert.CreatedBy, alert.CreatedAt, alert.Resolved, alert.ResolvedBy, resolvedAt)
	if err != nil {
		return domain.Alert{}, err
	}
	alert.ID = id
	for _, r := range alert.Responses {
		if err := tx.insertResponse(id, r); err != nil {
			return domain.Alert{}, err
		}
	}
	if alert.Responses == nil {
		alert.Responses = []domain.AlertResponse{}
	}
	tx.recordChange(domain.EntityAlert, domain.ActionCreate, id)
	return alert, nil
}

func (tx *transaction) insertResponse(alertID int, r domain.AlertResponse) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	_, err := tx.exec("insert response", `INSERT INTO alert_responses (alert_id, responder, message, created_at) VALUES (?, ?, ?, ?)`,
		alertID, r.Responder, r.Message, r.CreatedAt.UTC())
	return err
}

func (tx *transaction) findAlert(id int) (domain.Alert, error) {
	a, ok, err := tx.FindAlert(id)
	if err != nil {
		return domain.Alert{}, err
	}
	if !ok {
		return domain.Alert{}, domain.NotFound(domain.EntityAlert, id)
	}
	return a, nil
}

func (tx *transaction) AppendAlertResponse(alertID int, response domain.AlertResponse) (domain.Alert, error) {
	if _, err := tx.findAlert(alertID); err != nil {
		return domain.Alert{}, err
	}
	if err := tx.insertResponse(alertID, response); err != nil {
		return domain.Alert{}, err
	}
	tx.recordChange(domain.EntityAlert, domain.ActionUpdate, alertID)
	return tx.findAlert(alertID)
}

func (tx *transaction) SetAlertResolved(alertID int, resolved bool, resolvedBy string, at time.Time) (domain.Alert, error) {
	if _, err := tx.findAlert(alertID); err != nil {
		return domain.Alert{}, err
	}
	var resolvedAt any
	if resolved {
		if at.IsZero() {
			at = tx.now
		}
		resolvedAt = at.UTC()
	} else {
		resolvedBy = ""
	}
	if _, err := tx.exec("resolve alert", `UPDATE alerts SET resolved = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`,
		resolved, resolvedBy, resolvedAt, alertID); err != nil {
		return domain.Alert{}, err
	}
	tx.recordChange(domain.EntityAlert, domain.ActionUpdate, alertID)
	return tx.findAlert(alertID)
}

func (tx *transaction) DeleteAlert(alertID int) (domain.Alert, error) {
	a, err := tx.findAlert(alertID)
	if err != nil {
		return domain.Alert{}, err
	}
	if _, err := tx.exec("delete responses", `DELETE FROM alert_responses WHERE alert_id = ?`, alertID); err != nil {
		return domain.Alert{}, err
	}
	if _, err := tx.exec("delete alert", `DELETE FROM alerts WHERE id = ?`, alertID); err != nil {
		return domain.Alert{}, err
	}
	tx.recordChange(domain.EntityAlert, domain.ActionDelete, alertID)
	return a, nil
}

func (tx *transaction) AppendMessage(msg domain.Message) (domain.Message, error) {
	if msg.SentAt.IsZero() {
		msg.SentAt = tx.now
	}
	msg.SentAt = msg.SentAt.UTC()
	id, err := tx.insertReturningID("insert message", `INSERT INTO messages (sender, body, sent_at) VALUES (?, ?, ?)`,
		msg.Sender, msg.Body, msg.SentAt)
	if err != nil {
		return domain.Message{}, err
	}
	msg.ID = id
	tx.recordChange(domain.EntityMessage, domain.ActionCreate, id)
	return msg, nil
}
