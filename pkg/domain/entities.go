// Package domain defines the persistent entities, update types and error
// taxonomy shared by the compliance dashboard stores and services.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in Change records and error reporting.
const (
	// EntityPlant identifies a plant compliance record.
	EntityPlant EntityType = "plant"
	// EntityPlantFile identifies file metadata attached to a plant.
	EntityPlantFile EntityType = "plant_file"
	// EntityAlert identifies a general or plant-scoped alert.
	EntityAlert EntityType = "alert"
	// EntityMessage identifies a direct chat message.
	EntityMessage EntityType = "message"
)

// Default field values applied when an imported row leaves a column blank.
const (
	DefaultReporter        = "Pending"
	DefaultReportingStatus = "Not Started"
	DefaultAdditionalFee   = "None"
	DefaultAdditionalSteps = "None"
)

// Filing fee payment labels serialized as filing_fee_paid.
const (
	FeeCompleted    = "Completed"
	FeeNotCompleted = "Not Completed"
)

// Plant is a facility subject to Tier II reporting together with its
// compliance status and filing-fee data.
type Plant struct {
	ID              int         `json:"id"`
	Name            string      `json:"plant_name"`
	FullAddress     string      `json:"full_address"`
	AddressOnly     string      `json:"address_only"`
	City            string      `json:"city"`
	State           string      `json:"state"`
	Reporter2025    string      `json:"reporter_2025"`
	ReportingStatus string      `json:"reporting_status"`
	FilingFee       float64     `json:"filing_fee"`
	AdditionalFee   string      `json:"additional_fee"`
	AdditionalSteps string      `json:"additional_steps"`
	Notes           string      `json:"notes"`
	ClientNotes     string      `json:"client_notes"`
	Files           []PlantFile `json:"files"`
}

// FirstAddress returns the first comma separated segment of a full address.
func FirstAddress(full string) string {
	if full == "" {
		return ""
	}
	first, _, _ := strings.Cut(full, ",")
	return strings.TrimSpace(first)
}

// FeePaid reports whether the plant's filing fee has been recorded as paid.
func (p Plant) FeePaid() bool { return p.FilingFee > 0 }

// FeeStatus returns FeeCompleted or FeeNotCompleted.
func (p Plant) FeeStatus() string {
	if p.FeePaid() {
		return FeeCompleted
	}
	return FeeNotCompleted
}

// MarshalJSON adds the derived filing_fee_paid field. It is ignored on decode.
func (p Plant) MarshalJSON() ([]byte, error) {
	type plant Plant
	return json.Marshal(struct {
		plant
		FilingFeePaid string `json:"filing_fee_paid"`
	}{plant(p), p.FeeStatus()})
}

// PlantUpdate carries a partial edit of a plant. Nil fields are left untouched.
type PlantUpdate struct {
	Name            *string  `json:"plant_name,omitempty"`
	FullAddress     *string  `json:"full_address,omitempty"`
	AddressOnly     *string  `json:"address_only,omitempty"`
	City            *string  `json:"city,omitempty"`
	State           *string  `json:"state,omitempty"`
	Reporter2025    *string  `json:"reporter_2025,omitempty"`
	ReportingStatus *string  `json:"reporting_status,omitempty"`
	FilingFee       *float64 `json:"filing_fee,omitempty"`
	AdditionalFee   *string  `json:"additional_fee,omitempty"`
	AdditionalSteps *string  `json:"additional_steps,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	ClientNotes     *string  `json:"client_notes,omitempty"`
}

// Empty reports whether the update leaves every field untouched.
func (u PlantUpdate) Empty() bool {
	return u == PlantUpdate{}
}

// Apply merges the supplied fields over p.
func (u PlantUpdate) Apply(p *Plant) {
	setString(&p.Name, u.Name)
	setString(&p.FullAddress, u.FullAddress)
	setString(&p.AddressOnly, u.AddressOnly)
	setString(&p.City, u.City)
	setString(&p.State, u.State)
	setString(&p.Reporter2025, u.Reporter2025)
	setString(&p.ReportingStatus, u.ReportingStatus)
	if u.FilingFee != nil {
		p.FilingFee = *u.FilingFee
	}
	setString(&p.AdditionalFee, u.AdditionalFee)
	setString(&p.AdditionalSteps, u.AdditionalSteps)
	setString(&p.Notes, u.Notes)
	setString(&p.ClientNotes, u.ClientNotes)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// PlantFile describes a file attached to a plant. The blob itself lives in the
// blob store under Path.
type PlantFile struct {
	ID           int       `json:"id"`
	PlantID      int       `json:"plantId"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"fileName"`
	Size         int64     `json:"fileSize"`
	ContentType  string    `json:"contentType,omitempty"`
	UploadedAt   time.Time `json:"uploadDate"`
	Path         string    `json:"path"`
}

// AlertKind distinguishes team-wide alerts from plant-scoped ones.
type AlertKind string

const (
	AlertGeneral AlertKind = "general"
	AlertPlant   AlertKind = "plant"
)

// Valid reports whether k names a known alert kind.
func (k AlertKind) Valid() bool {
	return k == AlertGeneral || k == AlertPlant
}

// Alert is a notice raised by a user, optionally scoped to a plant, that
// collects threaded responses until resolved.
type Alert struct {
	ID         int             `json:"id"`
	Kind       AlertKind       `json:"kind"`
	PlantID    *int            `json:"plant_id,omitempty"`
	Message    string          `json:"message"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	Resolved   bool            `json:"resolved"`
	ResolvedBy string          `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	Responses  []AlertResponse `json:"responses"`
}

// AlertResponse is one reply in an alert thread.
type AlertResponse struct {
	Responder string    `json:"responder"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one entry of the direct chat log between the dashboard users.
type Message struct {
	ID     int       `json:"id"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}
