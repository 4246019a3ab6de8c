package httpapi

import (
	"compliancedash/internal/core"
	"compliancedash/pkg/domain"
	"context"
	"io"
)

// Service is the subset of *core.Service the handlers call.
type Service interface {
	ListPlants(ctx context.Context) ([]domain.Plant, error)
	GetPlant(ctx context.Context, id int) (domain.Plant, error)
	BulkReplace(ctx context.Context, plants []domain.Plant) (domain.Result, error)
	UpdatePlant(ctx context.Context, id int, update domain.PlantUpdate) (domain.Plant, domain.Result, error)
	Summary(ctx context.Context) (core.Summary, error)

	AttachFile(ctx context.Context, plantID int, upload core.FileUpload) (domain.PlantFile, domain.Result, error)
	ListFiles(ctx context.Context, plantID int) ([]domain.PlantFile, error)
	OpenFile(ctx context.Context, plantID, fileID int) (domain.PlantFile, io.ReadCloser, error)
	OpenBlob(ctx context.Context, file domain.PlantFile) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, plantID, fileID int) (domain.PlantFile, domain.Result, error)
	PlantFiles(ctx context.Context) (map[int][]domain.PlantFile, error)

	CreateGeneralAlert(ctx context.Context, message, createdBy string) (domain.Alert, domain.Result, error)
	CreatePlantAlert(ctx context.Context, plantID int, message, createdBy string) (domain.Alert, domain.Result, error)
	Respond(ctx context.Context, alertID int, responder, message string) (domain.Alert, domain.Result, error)
	Resolve(ctx context.Context, alertID int, resolved bool, resolvedBy string) (domain.Alert, domain.Result, error)
	DeleteAlert(ctx context.Context, alertID int, deletedBy string) (domain.Alert, domain.Result, error)
	ListAlerts(ctx context.Context, filter core.AlertFilter) ([]domain.Alert, error)
	SendMessage(ctx context.Context, sender, body string) (domain.Message, domain.Result, error)
	ListMessages(ctx context.Context, forUser string) ([]domain.Message, error)
}

var _ Service = (*core.Service)(nil)
