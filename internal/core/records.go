package core

import (
	"compliancedash/pkg/domain"
	"context"
	"fmt"
)

// ListPlants returns every plant ordered by id, with attached files.
func (s *Service) ListPlants(ctx context.Context) ([]domain.Plant, error) {
	var plants []domain.Plant
	err := s.view(ctx, "list_plants", func(v domain.TransactionView) error {
		var err error
		plants, err = v.ListPlants()
		return err
	})
	return plants, err
}

// GetPlant returns the plant with id or ErrNotFound.
func (s *Service) GetPlant(ctx context.Context, id int) (domain.Plant, error) {
	var plant domain.Plant
	err := s.view(ctx, "get_plant", func(v domain.TransactionView) error {
		p, ok, err := v.FindPlant(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound(domain.EntityPlant, id)
		}
		plant = p
		return nil
	})
	return plant, err
}

// BulkReplace discards every plant and attached file and stores plants in
// their place. Blobs of the discarded files are removed after the commit;
// failures there are logged and do not fail the call.
func (s *Service) BulkReplace(ctx context.Context, plants []domain.Plant) (domain.Result, error) {
	var stale []string
	res, err := s.run(ctx, "bulk_replace", "", func() string { return fmt.Sprintf("%d plants", len(plants)) }, func(tx domain.Transaction) error {
		existing, err := tx.ListPlants()
		if err != nil {
			return err
		}
		for _, p := range existing {
			files, err := tx.ListPlantFiles(p.ID)
			if err != nil {
				return err
			}
			for _, f := range files {
				stale = append(stale, f.Path)
			}
		}
		return tx.ReplacePlants(plants)
	})
	if err != nil {
		return res, err
	}
	s.removeBlobs(ctx, stale)
	return res, nil
}

func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("remove attachment blob", "key", key, "error", err)
		}
	}
}

// UpdatePlant merges update over the stored plant. An update with no fields
// is rejected.
func (s *Service) UpdatePlant(ctx context.Context, id int, update domain.PlantUpdate) (domain.Plant, domain.Result, error) {
	if update.Empty() {
		return domain.Plant{}, domain.Result{}, domain.ValidationError{Reason: "no fields to update"}
	}
	var updated domain.Plant
	res, err := s.run(ctx, "update_plant", "", itoa(id), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdatePlant(id, update)
		return err
	})
	return updated, res, err
}

// Summary computes dashboard statistics over the current plant set.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	plants, err := s.ListPlants(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(plants), nil
}
