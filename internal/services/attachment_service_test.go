package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/storage"
)

func newTestAttachments(t *testing.T, now time.Time) (AttachmentService, *storage.LocalStore) {
	t.Helper()
	svc, store, _ := newTestAttachmentsWithRoot(t, now)
	return svc, store
}

func newTestAttachmentsWithRoot(t *testing.T, now time.Time) (AttachmentService, *storage.LocalStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	svc, err := NewAttachmentService(AttachmentServiceDeps{
		Store:                store,
		MaxOrderFileBytes:    64,
		MaxProductImageBytes: 32,
		Clock:                fixedClock(now),
		IDGenerator:          sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("new attachment service: %v", err)
	}
	return svc, store, root
}

func TestAttachmentServiceStoreAndRetrieve(t *testing.T) {
	svc, _ := newTestAttachments(t, time.Now())
	ctx := context.Background()

	att, err := svc.Store(ctx, AttachmentUpload{Filename: `C:\Users\ana\Trabajo Práctico.pdf`, Body: strings.NewReader("%PDF-1.4")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if att.Ref != "tmp/0001/Trabajo_Pr_ctico.pdf" {
		t.Fatalf("unexpected ref %q", att.Ref)
	}
	if att.ContentType != "application/pdf" || att.Size != 8 {
		t.Fatalf("unexpected attachment %+v", att)
	}

	content, err := svc.Retrieve(ctx, att.Ref)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	defer content.Body.Close()
	body, _ := io.ReadAll(content.Body)
	if string(body) != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := svc.Retrieve(ctx, "tmp/missing/file.pdf"); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Retrieve(ctx, "../etc/passwd"); !errors.Is(err, ErrAttachmentInvalid) {
		t.Fatalf("expected invalid ref, got %v", err)
	}
}

func TestAttachmentServiceRejectsUnsupportedAndOversizedFiles(t *testing.T) {
	svc, _ := newTestAttachments(t, time.Now())
	ctx := context.Background()

	if _, err := svc.Store(ctx, AttachmentUpload{Filename: "virus.exe", Body: strings.NewReader("MZ")}); !errors.Is(err, ErrAttachmentInvalid) {
		t.Fatalf("expected invalid type, got %v", err)
	}
	if _, err := svc.Store(ctx, AttachmentUpload{Filename: "sin-extension", Body: strings.NewReader("x")}); !errors.Is(err, ErrAttachmentInvalid) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if _, err := svc.Store(ctx, AttachmentUpload{Filename: "big.pdf", Size: 65, Body: strings.NewReader("x")}); !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected declared size rejected, got %v", err)
	}
	// Size unknown up front: the body itself is capped.
	if _, err := svc.Store(ctx, AttachmentUpload{Filename: "big.pdf", Body: bytes.NewReader(make([]byte, 65))}); !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected streamed size rejected, got %v", err)
	}
	if _, err := svc.Store(ctx, AttachmentUpload{Filename: "exact.pdf", Body: bytes.NewReader(make([]byte, 64))}); err != nil {
		t.Fatalf("expected upload at the limit accepted, got %v", err)
	}
	if _, err := svc.StoreProductImage(ctx, "prd_1", AttachmentUpload{Filename: "foto.jpg", Body: bytes.NewReader(make([]byte, 33))}); !errors.Is(err, ErrAttachmentTooLarge) {
		t.Fatalf("expected image limit enforced, got %v", err)
	}
}

func TestAttachmentServiceDeleteIsIdempotent(t *testing.T) {
	svc, _ := newTestAttachments(t, time.Now())
	ctx := context.Background()

	att, err := svc.Store(ctx, AttachmentUpload{Filename: "hoja.png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Delete(ctx, att.Ref); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if _, err := svc.Retrieve(ctx, att.Ref); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected deleted attachment gone, got %v", err)
	}
}

func TestAttachmentServiceCommitToOrder(t *testing.T) {
	svc, store := newTestAttachments(t, time.Now())
	ctx := context.Background()

	first, err := svc.Store(ctx, AttachmentUpload{Filename: "capitulo1.pdf", Body: strings.NewReader("uno")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	second, err := svc.Store(ctx, AttachmentUpload{Filename: "capitulo2.docx", Body: strings.NewReader("dos!")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	files, err := svc.CommitToOrder(ctx, "ord_1", []string{first.Ref, second.Ref, first.Ref})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected duplicates collapsed, got %d files", len(files))
	}
	if files[0].Ref != "orders/ord_1/0001-capitulo1.pdf" || files[0].Filename != "capitulo1.pdf" || files[0].Size != 3 {
		t.Fatalf("unexpected first file %+v", files[0])
	}
	if files[1].Size != 4 {
		t.Fatalf("expected size from store, got %+v", files[1])
	}

	content, err := svc.Retrieve(ctx, files[1].Ref)
	if err != nil {
		t.Fatalf("retrieve committed: %v", err)
	}
	content.Body.Close()
	if content.Filename != "capitulo2.docx" {
		t.Fatalf("expected display name without upload id, got %q", content.Filename)
	}

	_, err = svc.CommitToOrder(ctx, "ord_2", []string{first.Ref, "tmp/nope/missing.pdf"})
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected missing upload error, got %v", err)
	}
	leftovers, err := store.List(ctx, "orders/ord_2/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected partial commit rolled back, found %d objects", len(leftovers))
	}

	if _, err := svc.CommitToOrder(ctx, "ord_3", []string{"orders/ord_1/0001-capitulo1.pdf"}); !errors.Is(err, ErrAttachmentInvalid) {
		t.Fatalf("expected non-temp ref rejected, got %v", err)
	}
}

func TestAttachmentServiceSweepStaleUploads(t *testing.T) {
	now := time.Now().UTC()
	svc, _, root := newTestAttachmentsWithRoot(t, now)
	ctx := context.Background()

	stale, err := svc.Store(ctx, AttachmentUpload{Filename: "viejo.pdf", Body: strings.NewReader("old")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	fresh, err := svc.Store(ctx, AttachmentUpload{Filename: "nuevo.pdf", Body: strings.NewReader("new")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	committed, err := svc.CommitToOrder(ctx, "ord_9", []string{stale.Ref})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	old := now.Add(-2 * time.Hour)
	for _, key := range []string{stale.Ref, committed[0].Ref} {
		if err := os.Chtimes(filepath.Join(root, filepath.FromSlash(key)), old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := svc.SweepStaleUploads(ctx, time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one stale upload removed, got %d", removed)
	}
	if _, err := svc.Retrieve(ctx, stale.Ref); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected stale upload removed, got %v", err)
	}
	for _, ref := range []string{fresh.Ref, committed[0].Ref} {
		content, err := svc.Retrieve(ctx, ref)
		if err != nil {
			t.Fatalf("expected %s kept, got %v", ref, err)
		}
		content.Body.Close()
	}
}
