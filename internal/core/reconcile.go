package core

import (
	"compliancedash/internal/blob"
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"fmt"
)

// BlobReport is the outcome of ReconcileBlobs.
type BlobReport struct {
	// Orphans are blob keys no attachment refers to.
	Orphans []string
	// Removed counts the orphans deleted.
	Removed int
	// Missing are attachments whose blob is gone.
	Missing []domain.PlantFile
}

// ReconcileBlobs compares attachment metadata against the blob store. Blobs
// without metadata are left behind when a process stops between the blob
// write and the metadata insert, or when a post-delete blob removal fails;
// they are deleted when removeOrphans is set. Attachments whose blob is gone
// are reported only.
//
// AttachFile writes the blob before its metadata, so this must not run while
// uploads are being served.
func (s *Service) ReconcileBlobs(ctx context.Context, removeOrphans bool) (BlobReport, error) {
	var report BlobReport
	byPlant, err := s.PlantFiles(ctx)
	if err != nil {
		return report, err
	}
	referenced := make(map[string]struct{})
	for _, files := range byPlant {
		for _, f := range files {
			referenced[f.Path] = struct{}{}
			if _, err := s.blobs.Head(ctx, f.Path); err != nil {
				if !errors.Is(err, blob.ErrNotFound) {
					return report, domain.StorageError{Op: "stat attachment", Err: fmt.Errorf("%s: %w", f.Path, err)}
				}
				report.Missing = append(report.Missing, f)
			}
		}
	}

	infos, err := s.blobs.List(ctx, "")
	if err != nil {
		return report, domain.StorageError{Op: "list attachments", Err: err}
	}
	for _, info := range infos {
		if _, ok := referenced[info.Key]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, info.Key)
		if !removeOrphans {
			continue
		}
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			s.logger.Warn("remove orphaned blob", "key", info.Key, "error", err)
			continue
		}
		report.Removed++
	}

	for _, f := range report.Missing {
		s.logger.Warn("attachment blob missing", "plant_id", f.PlantID, "file_id", f.ID, "key", f.Path)
	}
	if len(report.Orphans) > 0 {
		s.logger.Info("orphaned blobs found", "count", len(report.Orphans), "removed", report.Removed)
	}
	return report, nil
}
