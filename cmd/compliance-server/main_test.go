package main

import (
	"bytes"
	"compliancedash/internal/blob"
	"compliancedash/internal/config"
	"compliancedash/internal/core"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage:         core.StorageConfig{Driver: core.StorageMemory},
		Blob:            blob.Config{Driver: blob.DriverMemory},
		MaxFileBytes:    1 << 20,
		MaxUploadBytes:  1 << 20,
		Participants:    []string{"team", "client"},
		ShutdownTimeout: time.Second,
	}
}

func waitHealthy(t *testing.T, addr string) string {
	t.Helper()
	url := "http://" + addr + "/api/health"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return string(body)
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func stopServer(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, memoryConfig(), logger, ln) }()

	if body := waitHealthy(t, ln.Addr().String()); !strings.Contains(body, `"ok"`) {
		t.Fatalf("unexpected health body %s", body)
	}
	stopServer(t, cancel, done)
	if !strings.Contains(logs.String(), "shutting down") {
		t.Fatalf("expected shutdown log, got %s", logs.String())
	}
}

func TestRunRemovesOrphanedBlobsAtStartup(t *testing.T) {
	root := t.TempDir()
	stray := filepath.Join(root, "plant_4", "left_behind.pdf")
	if err := os.MkdirAll(filepath.Dir(stray), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stray, []byte("pdf"), 0o600); err != nil {
		t.Fatalf("write stray blob: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := memoryConfig()
	cfg.Blob = blob.Config{Driver: blob.DriverFilesystem, FSRoot: root}
	cfg.RemoveOrphanBlobs = true
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, slog.New(slog.NewJSONHandler(&logs, nil)), ln) }()

	waitHealthy(t, ln.Addr().String())
	stopServer(t, cancel, done)
	if _, err := os.Stat(stray); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected orphaned blob removed, got %v", err)
	}
	if !strings.Contains(logs.String(), "orphaned blobs found") {
		t.Fatalf("expected reconcile log, got %s", logs.String())
	}
}

func TestRunRejectsUnknownDriver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := memoryConfig()
	cfg.Storage.Driver = "cassandra"
	err = run(context.Background(), cfg, slog.New(slog.DiscardHandler), ln)
	if err == nil || !strings.Contains(err.Error(), "open record store") {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestCLIRejectsBadFlags(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli([]string{"-nope"}, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
