package storage

import "testing"

func TestBuildUploadPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeUpload, PathParams{
		UploadID: "01HZX",
		FileName: "apunte.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "tmp/01HZX/apunte.pdf" {
		t.Fatalf("unexpected path %s", path)
	}
	if !IsTempPath(path) {
		t.Fatalf("expected temp path")
	}
}

func TestBuildOrderFilePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeOrderFile, PathParams{
		OrderID:  "ord_1",
		UploadID: "01HZX",
		FileName: "apunte.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "orders/ord_1/01HZX-apunte.pdf" {
		t.Fatalf("unexpected path %s", path)
	}
	if BaseName(path) != "01HZX-apunte.pdf" {
		t.Fatalf("unexpected base name %s", BaseName(path))
	}
}

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{ProductID: "prd_1", FileName: "Tapa.JPG"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "products/prd_1/image.jpg" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeOrderFile, PathParams{
		OrderID:  "../bad",
		UploadID: "upload",
		FileName: "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"tmp/a/b.pdf", "products/prd_1/image"}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Fatalf("expected %q valid: %v", key, err)
		}
	}
	invalid := []string{"", "/etc/passwd", "tmp/../x", "tmp//x", `tmp\x`}
	for _, key := range invalid {
		if err := ValidateKey(key); err == nil {
			t.Fatalf("expected %q invalid", key)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.pdf":  "application/pdf",
		"a.PNG":  "image/png",
		"a.webp": "image/webp",
		"a.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"image":  "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentTypeFor(key); got != want {
			t.Fatalf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}
