package domain

import (
	"context"
	"time"
)

// Action describes the kind of mutation recorded in a Change.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
)

// Change records a single mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     int
}

// Result summarises a committed transaction.
type Result struct {
	Changes []Change
}

// Count returns the number of changes recorded for entity.
func (r Result) Count(entity EntityType) int {
	n := 0
	for _, c := range r.Changes {
		if c.Entity == entity {
			n++
		}
	}
	return n
}

// TransactionView provides read-only access to the store state.
type TransactionView interface {
	ListPlants() ([]Plant, error)
	FindPlant(id int) (Plant, bool, error)
	ListPlantFiles(plantID int) ([]PlantFile, error)
	FindPlantFile(plantID, fileID int) (PlantFile, bool, error)
	ListAlerts() ([]Alert, error)
	FindAlert(id int) (Alert, bool, error)
	ListMessages() ([]Message, error)
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope. Mutations fail with ErrNotFound when a
// referenced record is missing.
type Transaction interface {
	TransactionView
	// ReplacePlants discards every plant and attached file and inserts plants
	// as given, keeping their ids.
	ReplacePlants(plants []Plant) error
	UpdatePlant(id int, update PlantUpdate) (Plant, error)
	// AddPlantFile assigns a fresh id to file and stores it under plantID.
	AddPlantFile(plantID int, file PlantFile) (PlantFile, error)
	DeletePlantFile(plantID, fileID int) (PlantFile, error)
	CreateAlert(alert Alert) (Alert, error)
	AppendAlertResponse(alertID int, response AlertResponse) (Alert, error)
	SetAlertResolved(alertID int, resolved bool, resolvedBy string, at time.Time) (Alert, error)
	DeleteAlert(alertID int) (Alert, error)
	AppendMessage(msg Message) (Message, error)
}

// PersistentStore is the abstraction over durable backends used by the
// services. RunInTransaction commits all of fn's mutations or none of them.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
