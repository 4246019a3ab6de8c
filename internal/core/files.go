package core

import (
	"compliancedash/internal/blob"
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileUpload is an attachment submitted for a plant.
type FileUpload struct {
	Name        string
	ContentType string
	// Size is the declared length, or -1 when unknown. The stored length is
	// checked against the ceiling either way.
	Size int64
	Body io.Reader
}

// BlobKey returns the storage key for an attachment named name on plantID:
// plant_<id>/<base>_<uuid><ext>.
func BlobKey(plantID int, name string) string {
	base := path.Base(filepath.ToSlash(name))
	ext := path.Ext(base)
	stem := sanitizeStem(strings.TrimSuffix(base, ext))
	if stem == "" {
		stem = "file"
	}
	return fmt.Sprintf("plant_%d/%s_%s%s", plantID, stem, uuid.NewString(), sanitizeStem(ext))
}

func sanitizeStem(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, s)
}

func (s *Service) tooLarge() error {
	return domain.ValidationError{
		Field:    "file",
		Reason:   fmt.Sprintf("file exceeds the %d byte limit", s.maxFileBytes),
		TooLarge: true,
	}
}

// AttachFile stores the upload as a blob and records its metadata on the
// plant. When the metadata insert fails the blob is removed again.
func (s *Service) AttachFile(ctx context.Context, plantID int, upload FileUpload) (domain.PlantFile, domain.Result, error) {
	name := strings.TrimSpace(upload.Name)
	if name == "" {
		return domain.PlantFile{}, domain.Result{}, domain.ValidationError{Field: "file", Reason: "no file uploaded"}
	}
	if upload.Body == nil {
		return domain.PlantFile{}, domain.Result{}, domain.ValidationError{Field: "file", Reason: "empty file body"}
	}
	if upload.Size > s.maxFileBytes {
		return domain.PlantFile{}, domain.Result{}, s.tooLarge()
	}
	if _, err := s.GetPlant(ctx, plantID); err != nil {
		return domain.PlantFile{}, domain.Result{}, err
	}

	key := BlobKey(plantID, name)
	info, err := s.blobs.Put(ctx, key, io.LimitReader(upload.Body, s.maxFileBytes+1), blob.PutOptions{
		ContentType: upload.ContentType,
		Metadata:    map[string]string{"original-name": path.Base(filepath.ToSlash(name))},
	})
	if err != nil {
		return domain.PlantFile{}, domain.Result{}, domain.StorageError{Op: "store attachment", Err: err}
	}
	if info.Size > s.maxFileBytes {
		s.removeBlobs(ctx, []string{key})
		return domain.PlantFile{}, domain.Result{}, s.tooLarge()
	}

	var stored domain.PlantFile
	res, err := s.run(ctx, "attach_file", "", func() string { return fmt.Sprintf("%d/%d", plantID, stored.ID) }, func(tx domain.Transaction) error {
		var err error
		stored, err = tx.AddPlantFile(plantID, domain.PlantFile{
			OriginalName: path.Base(filepath.ToSlash(name)),
			StoredName:   path.Base(key),
			Size:         info.Size,
			ContentType:  upload.ContentType,
			UploadedAt:   s.now(),
			Path:         key,
		})
		return err
	})
	if err != nil {
		s.removeBlobs(ctx, []string{key})
		return domain.PlantFile{}, res, err
	}
	return stored, res, nil
}

// ListFiles returns the files attached to a plant, most recent first.
func (s *Service) ListFiles(ctx context.Context, plantID int) ([]domain.PlantFile, error) {
	var files []domain.PlantFile
	err := s.view(ctx, "list_files", func(v domain.TransactionView) error {
		if _, ok, err := v.FindPlant(plantID); err != nil {
			return err
		} else if !ok {
			return domain.NotFound(domain.EntityPlant, plantID)
		}
		var err error
		files, err = v.ListPlantFiles(plantID)
		return err
	})
	return files, err
}

// GetFile returns one attachment's metadata.
func (s *Service) GetFile(ctx context.Context, plantID, fileID int) (domain.PlantFile, error) {
	var file domain.PlantFile
	err := s.view(ctx, "get_file", func(v domain.TransactionView) error {
		f, ok, err := v.FindPlantFile(plantID, fileID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound(domain.EntityPlantFile, fileID)
		}
		file = f
		return nil
	})
	return file, err
}

// OpenFile returns an attachment's metadata and a reader over its content.
// The caller closes the reader. A missing blob is reported as ErrNotFound.
func (s *Service) OpenFile(ctx context.Context, plantID, fileID int) (domain.PlantFile, io.ReadCloser, error) {
	file, err := s.GetFile(ctx, plantID, fileID)
	if err != nil {
		return domain.PlantFile{}, nil, err
	}
	rc, err := s.OpenBlob(ctx, file)
	if err != nil {
		return domain.PlantFile{}, nil, err
	}
	return file, rc, nil
}

// OpenBlob opens the stored content of file.
func (s *Service) OpenBlob(ctx context.Context, file domain.PlantFile) (io.ReadCloser, error) {
	_, rc, err := s.blobs.Get(ctx, file.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, domain.ErrNotFound{Entity: domain.EntityPlantFile, ID: fmt.Sprintf("%d (blob %s)", file.ID, file.Path)}
		}
		return nil, domain.StorageError{Op: "open attachment", Err: err}
	}
	return rc, nil
}

// DeleteFile removes an attachment's metadata and then its blob. A failed
// blob removal leaves an orphaned blob and is logged only.
func (s *Service) DeleteFile(ctx context.Context, plantID, fileID int) (domain.PlantFile, domain.Result, error) {
	var removed domain.PlantFile
	res, err := s.run(ctx, "delete_file", "", func() string { return fmt.Sprintf("%d/%d", plantID, fileID) }, func(tx domain.Transaction) error {
		var err error
		removed, err = tx.DeletePlantFile(plantID, fileID)
		return err
	})
	if err != nil {
		return domain.PlantFile{}, res, err
	}
	s.removeBlobs(ctx, []string{removed.Path})
	return removed, res, nil
}

// PlantFiles returns the attachments of every plant keyed by plant id.
func (s *Service) PlantFiles(ctx context.Context) (map[int][]domain.PlantFile, error) {
	out := make(map[int][]domain.PlantFile)
	err := s.view(ctx, "list_all_files", func(v domain.TransactionView) error {
		plants, err := v.ListPlants()
		if err != nil {
			return err
		}
		for _, p := range plants {
			files, err := v.ListPlantFiles(p.ID)
			if err != nil {
				return err
			}
			out[p.ID] = files
		}
		return nil
	})
	return out, err
}
