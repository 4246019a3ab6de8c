package blob

import (
	"compliancedash/internal/blob/blobtest"
	"compliancedash/internal/blob/core"
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	cases := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{"default fs", Config{FSRoot: root}, DriverFilesystem},
		{"explicit fs", Config{Driver: DriverFilesystem, FSRoot: root}, DriverFilesystem},
		{"memory", Config{Driver: DriverMemory}, DriverMemory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if s.Driver() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, s.Driver())
			}
		})
	}
	if _, err := Open(ctx, Config{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestFakeS3ForTestsContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store {
		s, err := NewFakeS3ForTests(context.Background())
		if err != nil {
			t.Fatalf("fake s3: %v", err)
		}
		return s
	})
}
