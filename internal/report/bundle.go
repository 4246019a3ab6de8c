package report

import (
	"archive/zip"
	"bytes"
	"compliancedash/pkg/domain"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Opener returns the stored content of an attachment. Errors satisfying
// domain.IsNotFound mark a missing blob, which is skipped.
type Opener func(ctx context.Context, file domain.PlantFile) (io.ReadCloser, error)

// BundleFilename names the single plant ZIP.
func BundleFilename(p domain.Plant, now time.Time) string {
	return fmt.Sprintf("%s_Complete_%s.zip", SafeName(p.Name), now.Format(dateLayout))
}

// AllPlantsFilename names the ZIP holding every plant.
func AllPlantsFilename(now time.Time) string {
	return fmt.Sprintf("All_Plants_%s.zip", now.Format(dateLayout))
}

// entryNames hands out archive paths, suffixing repeats as "name (2).ext".
type entryNames map[string]int

func (n entryNames) unique(name string) string {
	n[name]++
	if n[name] == 1 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := n[name]; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, taken := n[candidate]; !taken {
			n[candidate] = 1
			return candidate
		}
	}
}

func addReport(zw *zip.Writer, name string, p domain.Plant, files []domain.PlantFile, now time.Time) error {
	var buf bytes.Buffer
	if err := WritePlantReport(&buf, p, files, now); err != nil {
		return fmt.Errorf("plant %d report: %w", p.ID, err)
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func addFile(ctx context.Context, zw *zip.Writer, name string, file domain.PlantFile, open Opener, now time.Time) error {
	rc, err := open(ctx, file)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	defer func() { _ = rc.Close() }()
	modified := file.UploadedAt
	if modified.IsZero() {
		modified = now
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, rc)
	return err
}

// WritePlantBundle writes a ZIP with the plant report at the root and each
// attachment under Files/ by its original name.
func WritePlantBundle(ctx context.Context, w io.Writer, p domain.Plant, files []domain.PlantFile, now time.Time, open Opener) error {
	zw := zip.NewWriter(w)
	names := entryNames{}
	if err := addReport(zw, names.unique(SafeName(p.Name)+"_Report.xlsx"), p, files, now); err != nil {
		return err
	}
	for _, file := range files {
		name := names.unique("Files/" + SafeName(file.OriginalName))
		if err := addFile(ctx, zw, name, file, open, now); err != nil {
			return err
		}
	}
	return zw.Close()
}

// WriteAllPlants writes a ZIP with reports/<plant>_Report.xlsx for every
// plant and its attachments under files/<plant>/<stored name>.
func WriteAllPlants(ctx context.Context, w io.Writer, plants []domain.Plant, files map[int][]domain.PlantFile, now time.Time, open Opener) error {
	zw := zip.NewWriter(w)
	names := entryNames{}
	for _, p := range plants {
		if err := ctx.Err(); err != nil {
			return err
		}
		plantName := SafeName(p.Name)
		if err := addReport(zw, names.unique("reports/"+plantName+"_Report.xlsx"), p, files[p.ID], now); err != nil {
			return err
		}
		for _, file := range files[p.ID] {
			name := names.unique("files/" + plantName + "/" + SafeName(file.StoredName))
			if err := addFile(ctx, zw, name, file, open, now); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}
