// Package blobtest holds the behavioural checks shared by the blob backends.
package blobtest

import (
	"bytes"
	"compliancedash/internal/blob/core"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// Run exercises the core.Store contract against the stores produced by open.
func Run(t *testing.T, open func(t *testing.T) core.Store) {
	t.Helper()
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("CreateOnly", func(t *testing.T) { testCreateOnly(t, open(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, open(t)) })
	t.Run("ListPrefix", func(t *testing.T) { testListPrefix(t, open(t)) })
	t.Run("NonSeekableReader", func(t *testing.T) { testNonSeekable(t, open(t)) })
}

func testRoundTrip(t *testing.T, store core.Store) {
	ctx := context.Background()
	info, err := store.Put(ctx, "plant_1/report_abc.pdf", bytes.NewReader([]byte("%PDF-1.4 body")), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "plant_1/report_abc.pdf" || info.Size != 13 {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "plant_1/report_abc.pdf")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != 13 || head.ContentType != "application/pdf" {
		t.Fatalf("unexpected head %+v", head)
	}
	got, rc, err := store.Get(ctx, "plant_1/report_abc.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "%PDF-1.4 body" || got.Size != 13 {
		t.Fatalf("unexpected content %q (%d)", body, got.Size)
	}
	ok, err := store.Delete(ctx, "plant_1/report_abc.pdf")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "plant_1/report_abc.pdf")
	if err != nil || ok {
		t.Fatalf("second delete should report false, got %v %v", ok, err)
	}
}

func testCreateOnly(t *testing.T, store core.Store) {
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.txt", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k.txt", strings.NewReader("two"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "k.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	if b, _ := io.ReadAll(rc); string(b) != "one" {
		t.Fatalf("expected original content kept, got %q", b)
	}
	if _, err := store.Put(ctx, "", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for empty key, got %v", err)
	}
}

func testMissing(t *testing.T, store core.Store) {
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "nope/missing.bin"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if _, err := store.Head(ctx, "nope/missing.bin"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
}

func testListPrefix(t *testing.T, store core.Store) {
	ctx := context.Background()
	for _, key := range []string{"plant_2/b.txt", "plant_1/a.txt", "plant_1/c.txt", "plant_10/d.txt"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "plant_1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "plant_1/a.txt" || list[1].Key != "plant_1/c.txt" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 blobs, got %d (%v)", len(all), err)
	}
	if empty, err := store.List(ctx, "none/"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v %v", empty, err)
	}
}

type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func testNonSeekable(t *testing.T, store core.Store) {
	ctx := context.Background()
	payload := strings.Repeat("x", 70000)
	info, err := store.Put(ctx, "stream.bin", onlyReader{strings.NewReader(payload)}, core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), info.Size)
	}
	_, rc, err := store.Get(ctx, "stream.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	if b, _ := io.ReadAll(rc); string(b) != payload {
		t.Fatalf("payload mismatch (%d bytes)", len(b))
	}
}
