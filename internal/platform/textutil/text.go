// Package textutil holds the text helpers shared by the catalog and notification services.
package textutil

import (
	"bytes"
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
	markdown     = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))

	moneyPrinterOnce sync.Once
	moneyPrinter     *message.Printer
)

// FoldKey produces a comparison key: lower case, accents stripped, inner whitespace collapsed.
// "Impresión  Color" and "impresion color" fold to the same key.
func FoldKey(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SanitizePlain strips every tag from value and trims it. Entities are decoded back so stored
// text stays readable.
func SanitizePlain(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// RenderMarkdown converts markdown to HTML safe for embedding in the storefront.
func RenderMarkdown(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return ugcPolicy.Sanitize(buf.String()), nil
}

// FormatPesos renders centavos in Argentine Spanish notation, e.g. 150000 -> "$1.500,00".
func FormatPesos(centavos int64) string {
	moneyPrinterOnce.Do(func() {
		moneyPrinter = message.NewPrinter(language.MustParse("es-AR"))
	})
	sign := ""
	if centavos < 0 {
		sign = "-"
		centavos = -centavos
	}
	return sign + "$" + moneyPrinter.Sprintf("%.2f", float64(centavos)/100)
}

// DigitsOnly keeps the ASCII digits of value, used for phone numbers in messaging links.
func DigitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
