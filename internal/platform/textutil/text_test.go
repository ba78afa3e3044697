package textutil

import (
	"strings"
	"testing"
)

func TestFoldKey(t *testing.T) {
	cases := map[string]string{
		"Impresión  Color":    "impresion color",
		" ENCUADERNACIÓN ":    "encuadernacion",
		"Fotocopia doble faz": "fotocopia doble faz",
	}
	for input, want := range cases {
		if got := FoldKey(input); got != want {
			t.Fatalf("FoldKey(%q) = %q, want %q", input, got, want)
		}
	}
	if FoldKey("Plastificado A4") != FoldKey("plastificado  a4") {
		t.Fatalf("expected equal keys")
	}
}

func TestSanitizePlain(t *testing.T) {
	got := SanitizePlain(`  <b>Matemática</b> & Física<script>alert(1)</script> `)
	if got != "Matemática & Física" {
		t.Fatalf("unexpected sanitised text %q", got)
	}
}

func TestRenderMarkdownStripsScripts(t *testing.T) {
	out, err := RenderMarkdown("**Apunte** completo\n\n<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if !strings.Contains(out, "<strong>Apunte</strong>") {
		t.Fatalf("expected bold markup, got %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("script survived sanitising: %q", out)
	}

	empty, err := RenderMarkdown("   ")
	if err != nil || empty != "" {
		t.Fatalf("expected empty output, got %q (%v)", empty, err)
	}
}

func TestFormatPesos(t *testing.T) {
	cases := map[int64]string{
		1234567: "$12.345,67",
		5000:    "$50,00",
		-2500:   "-$25,00",
	}
	for centavos, want := range cases {
		if got := FormatPesos(centavos); got != want {
			t.Fatalf("FormatPesos(%d) = %q, want %q", centavos, got, want)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("+54 9 11 2504-2343"); got != "5491125042343" {
		t.Fatalf("unexpected digits %q", got)
	}
}
