package httpapi

import (
	"compliancedash/internal/core"
	"errors"
	"io"
	"net/http"
	"strconv"
)

// handleAttachFile streams the "file" part of a multipart body into the blob
// store without buffering it on disk.
func (h *Handler) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	plantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.svc.GetPlant(r.Context(), plantID); err != nil {
		h.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				h.fail(w, r, err)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		file, _, err := h.svc.AttachFile(r.Context(), plantID, core.FileUpload{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        -1,
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "File uploaded successfully",
			"file":    file,
		})
		return
	}
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	plantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	files, err := h.svc.ListFiles(r.Context(), plantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(files))
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	plantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(w, r, "fileId")
	if !ok {
		return
	}
	if _, _, err := h.svc.DeleteFile(r.Context(), plantID, fileID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted successfully"})
}

func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	plantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(w, r, "fileId")
	if !ok {
		return
	}
	file, body, err := h.svc.OpenFile(r.Context(), plantID, fileID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	setAttachmentHeaders(w, contentType, file.OriginalName)
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
