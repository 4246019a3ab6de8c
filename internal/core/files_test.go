package core

import (
	"compliancedash/internal/blob"
	"compliancedash/pkg/domain"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestBlobKeyLayout(t *testing.T) {
	key := BlobKey(7, "Site Plan (v2).pdf")
	re := regexp.MustCompile(`^plant_7/Site_Plan_v2_[0-9a-f-]{36}\.pdf$`)
	if !re.MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
	if k := BlobKey(1, "../../etc/passwd"); !strings.HasPrefix(k, "plant_1/passwd_") {
		t.Fatalf("expected traversal stripped, got %q", k)
	}
	if k := BlobKey(1, ".env"); !strings.HasPrefix(k, "plant_1/file_") || !strings.HasSuffix(k, ".env") {
		t.Fatalf("expected fallback stem, got %q", k)
	}
}

func TestAttachListOpenDelete(t *testing.T) {
	svc, _, blobs := newSeededService(t)
	ctx := context.Background()

	first, res, err := svc.AttachFile(ctx, 1, FileUpload{Name: "a.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("one")})
	if err != nil {
		t.Fatalf("attach first: %v", err)
	}
	if res.Count(domain.EntityPlantFile) != 1 {
		t.Fatalf("expected one file change, got %+v", res.Changes)
	}
	if first.OriginalName != "a.txt" || first.Size != 3 || first.PlantID != 1 || !first.UploadedAt.Equal(fixedNow) {
		t.Fatalf("unexpected metadata %+v", first)
	}
	if first.StoredName == "" || !strings.HasSuffix(first.Path, first.StoredName) {
		t.Fatalf("stored name %q should end path %q", first.StoredName, first.Path)
	}
	second, _, err := svc.AttachFile(ctx, 1, FileUpload{Name: "b.txt", Size: -1, Body: strings.NewReader("second")})
	if err != nil {
		t.Fatalf("attach second: %v", err)
	}

	files, err := svc.ListFiles(ctx, 1)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 2 || files[0].ID != second.ID || files[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", files)
	}

	meta, rc, err := svc.OpenFile(ctx, 1, first.ID)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "one" || meta.ID != first.ID {
		t.Fatalf("unexpected content %q meta %+v", body, meta)
	}

	removed, _, err := svc.DeleteFile(ctx, 1, first.ID)
	if err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if removed.ID != first.ID {
		t.Fatalf("expected removed id %d, got %d", first.ID, removed.ID)
	}
	if _, err := blobs.Head(ctx, first.Path); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected blob removed, got %v", err)
	}
	if _, err := svc.GetFile(ctx, 1, first.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected deleted file not found, got %v", err)
	}
	if _, _, err := svc.DeleteFile(ctx, 1, first.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected second delete not found, got %v", err)
	}

	third, _, err := svc.AttachFile(ctx, 1, FileUpload{Name: "c.txt", Size: 1, Body: strings.NewReader("3")})
	if err != nil {
		t.Fatalf("attach third: %v", err)
	}
	if third.ID == first.ID || third.ID <= second.ID {
		t.Fatalf("file id reused or not increasing: %d", third.ID)
	}
}

func TestAttachFileUnknownPlant(t *testing.T) {
	svc, _, blobs := newSeededService(t)
	ctx := context.Background()
	_, _, err := svc.AttachFile(ctx, 99, FileUpload{Name: "x.pdf", Size: 1, Body: strings.NewReader("x")})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if infos, _ := blobs.List(ctx, ""); len(infos) != 0 {
		t.Fatalf("expected no blob for unknown plant, got %+v", infos)
	}
	if _, err := svc.ListFiles(ctx, 99); !domain.IsNotFound(err) {
		t.Fatalf("expected list on unknown plant not found, got %v", err)
	}
}

func TestAttachFileSizeCeiling(t *testing.T) {
	svc, _, blobs := newSeededService(t, WithMaxFileBytes(4))
	ctx := context.Background()

	_, _, err := svc.AttachFile(ctx, 1, FileUpload{Name: "big.bin", Size: 5, Body: strings.NewReader("12345")})
	var ve domain.ValidationError
	if !errors.As(err, &ve) || !ve.TooLarge {
		t.Fatalf("expected too large from declared size, got %v", err)
	}
	_, _, err = svc.AttachFile(ctx, 1, FileUpload{Name: "big.bin", Size: -1, Body: strings.NewReader("123456789")})
	if !errors.As(err, &ve) || !ve.TooLarge {
		t.Fatalf("expected too large from streamed size, got %v", err)
	}
	if infos, _ := blobs.List(ctx, ""); len(infos) != 0 {
		t.Fatalf("expected oversize blob removed, got %+v", infos)
	}
	if _, _, err := svc.AttachFile(ctx, 1, FileUpload{Name: "ok.bin", Size: 4, Body: strings.NewReader("1234")}); err != nil {
		t.Fatalf("expected upload at the limit to pass: %v", err)
	}
}

func TestAttachFileRejectsMissingUpload(t *testing.T) {
	svc, _, _ := newSeededService(t)
	if _, _, err := svc.AttachFile(context.Background(), 1, FileUpload{Body: strings.NewReader("x")}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := svc.AttachFile(context.Background(), 1, FileUpload{Name: "x"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for nil body, got %v", err)
	}
}

func TestAttachFileRemovesBlobWhenMetadataFails(t *testing.T) {
	_, store, _ := newSeededService(t)
	blobs := blob.NewMemory()
	boom := domain.StorageError{Op: "insert file", Err: errors.New("disk full")}
	svc := NewService(failingTxStore{Store: store, err: boom}, blobs, WithClock(ClockFunc(func() time.Time { return fixedNow })))
	ctx := context.Background()
	_, _, err := svc.AttachFile(ctx, 1, FileUpload{Name: "a.txt", Size: 1, Body: strings.NewReader("a")})
	var se domain.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if infos, _ := blobs.List(ctx, ""); len(infos) != 0 {
		t.Fatalf("expected blob cleaned up, got %+v", infos)
	}
}

func TestOpenFileMissingBlob(t *testing.T) {
	svc, _, blobs := newSeededService(t)
	ctx := context.Background()
	file, _, err := svc.AttachFile(ctx, 2, FileUpload{Name: "gone.txt", Size: 1, Body: strings.NewReader("g")})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := blobs.Delete(ctx, file.Path); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	if _, _, err := svc.OpenFile(ctx, 2, file.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing blob, got %v", err)
	}
}

func TestPlantFilesGroupsByPlant(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()
	for _, id := range []int{1, 1, 3} {
		if _, _, err := svc.AttachFile(ctx, id, FileUpload{Name: "f.txt", Size: 1, Body: strings.NewReader("f")}); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	byPlant, err := svc.PlantFiles(ctx)
	if err != nil {
		t.Fatalf("plant files: %v", err)
	}
	if len(byPlant[1]) != 2 || len(byPlant[2]) != 0 || len(byPlant[3]) != 1 {
		t.Fatalf("unexpected grouping %+v", byPlant)
	}
}
