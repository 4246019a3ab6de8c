package httpapi

import (
	"bytes"
	"compliancedash/internal/ingest"
	"compliancedash/internal/report"
	"compliancedash/pkg/domain"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
)

const (
	noDataYet = "No data available. Please upload an Excel file first."
	noData    = "No data available"
)

func (h *Handler) handleListPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := h.svc.ListPlants(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(plants) == 0 {
		writeError(w, http.StatusNotFound, noDataYet)
		return
	}
	for i := range plants {
		plants[i].Files = nonNil(plants[i].Files)
	}
	writeJSON(w, http.StatusOK, plants)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if summary.TotalPlants == 0 {
		writeError(w, http.StatusNotFound, noData)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var update domain.PlantUpdate
	if !h.decodeOrFail(w, r, &update, "plant update") {
		return
	}
	plant, _, err := h.svc.UpdatePlant(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	plant.Files = nonNil(plant.Files)
	writeJSON(w, http.StatusOK, plant)
}

// handleUpload imports a spreadsheet and replaces every plant with its rows.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			h.fail(w, r, err)
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusBadRequest, "No file uploaded")
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
		}
		return
	}
	defer func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}()

	if err := ingest.CheckContentType(header.Header.Get("Content-Type")); err != nil {
		h.fail(w, r, err)
		return
	}
	plants, warnings, err := ingest.Parse(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, warn := range warnings {
		h.logger.WarnContext(r.Context(), "filing fee not numeric",
			slog.String("filename", header.Filename),
			slog.Int("row", warn.Row),
			slog.String("value", warn.Value),
		)
	}
	if _, err := h.svc.BulkReplace(r.Context(), plants); err != nil {
		h.fail(w, r, err)
		return
	}
	for i := range plants {
		plants[i].Files = nonNil(plants[i].Files)
	}
	h.logger.InfoContext(r.Context(), "spreadsheet imported",
		slog.String("filename", header.Filename),
		slog.Int("plants", len(plants)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Successfully uploaded %d plants", len(plants)),
		"data":    plants,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	plants, err := h.svc.ListPlants(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(plants) == 0 {
		writeError(w, http.StatusNotFound, noData)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteExport(&buf, plants); err != nil {
		h.fail(w, r, err)
		return
	}
	writeAttachment(w, ingest.ContentTypeXLSX, report.ExportFilename(h.now()), buf.Bytes())
}

// handleExportAll streams a ZIP of every plant report and attachment. Errors
// after the first byte can only be logged.
func (h *Handler) handleExportAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plants, err := h.svc.ListPlants(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(plants) == 0 {
		writeError(w, http.StatusNotFound, noData)
		return
	}
	files, err := h.svc.PlantFiles(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	setAttachmentHeaders(w, "application/zip", report.AllPlantsFilename(now))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteAllPlants(ctx, w, plants, files, now, h.svc.OpenBlob); err != nil {
		h.logger.ErrorContext(ctx, "export all plants aborted", slog.Any("error", err))
	}
}

func (h *Handler) handlePlantReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plant, err := h.svc.GetPlant(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	files, err := h.svc.ListFiles(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	var buf bytes.Buffer
	if err := report.WritePlantReport(&buf, plant, files, now); err != nil {
		h.fail(w, r, err)
		return
	}
	writeAttachment(w, ingest.ContentTypeXLSX, report.PlantReportFilename(plant, now), buf.Bytes())
}

func (h *Handler) handlePlantBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	plant, err := h.svc.GetPlant(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	files, err := h.svc.ListFiles(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	setAttachmentHeaders(w, "application/zip", report.BundleFilename(plant, now))
	w.WriteHeader(http.StatusOK)
	if err := report.WritePlantBundle(ctx, w, plant, files, now, h.svc.OpenBlob); err != nil {
		h.logger.ErrorContext(ctx, "plant bundle aborted", slog.Int("plant_id", id), slog.Any("error", err))
	}
}

func setAttachmentHeaders(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	setAttachmentHeaders(w, contentType, filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
