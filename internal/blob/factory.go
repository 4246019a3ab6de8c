package blob

import (
	"compliancedash/internal/infra/blob/fs"
	memorystore "compliancedash/internal/infra/blob/memory"
	infraS3 "compliancedash/internal/infra/blob/s3"
	"context"
	"fmt"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Config selects and configures a blob backend.
type Config struct {
	// Driver is fs, s3 or memory. Empty selects fs.
	Driver Driver
	// FSRoot is the directory root when Driver is fs (default ./uploads).
	FSRoot string
	S3     S3Config
}

// Open constructs the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFakeS3ForTests returns an S3 Store backed by an in-process fake
// transport, for cross-package tests.
func NewFakeS3ForTests(ctx context.Context) (Store, error) {
	s, err := infraS3.NewFake(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
