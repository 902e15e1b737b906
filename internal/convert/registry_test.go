package convert

import (
	"context"
	"errors"
	"testing"

	"github.com/docpress/docpress-backend/internal/pdftools"
)

type stubTools struct {
	pdftools.Tools
}

func (s *stubTools) ConvertOfficeToPDF(ctx context.Context, input []byte, ext string) ([]byte, error) {
	return []byte("pdf"), nil
}

func (s *stubTools) RenderPDFToImages(ctx context.Context, input []byte, opts pdftools.RenderOptions) ([][]byte, error) {
	return [][]byte{[]byte("p1"), []byte("p2")}, nil
}

func TestResolveKnownPairs(t *testing.T) {
	r := DefaultRegistry(&stubTools{})

	tests := []struct {
		from, to  string
		oneToMany bool
		ext       string
	}{
		{"office", "pdf", false, ".pdf"},
		{"pdf", "image", true, ".png"},
		{"OFFICE", "PDF", false, ".pdf"},   // case-insensitive
		{" pdf ", " image ", true, ".png"}, // whitespace-tolerant
	}
	for _, tt := range tests {
		c, err := r.Resolve(tt.from, tt.to)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tt.from, tt.to, err)
		}
		if c.OneToMany() != tt.oneToMany {
			t.Fatalf("Resolve(%q, %q).OneToMany() = %v, want %v", tt.from, tt.to, c.OneToMany(), tt.oneToMany)
		}
		if c.OutputExt() != tt.ext {
			t.Fatalf("Resolve(%q, %q).OutputExt() = %q, want %q", tt.from, tt.to, c.OutputExt(), tt.ext)
		}
	}
}

func TestResolveUnknownPair(t *testing.T) {
	r := DefaultRegistry(&stubTools{})
	for _, pair := range [][2]string{
		{"image", "office"},
		{"pdf", "office"},
		{"", ""},
		{"video", "pdf"},
	} {
		_, err := r.Resolve(pair[0], pair[1])
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Resolve(%q, %q) = %v, want ErrUnsupported", pair[0], pair[1], err)
		}
	}
}

func TestOfficeToPDFWrapsSingleOutput(t *testing.T) {
	r := DefaultRegistry(&stubTools{})
	c, err := r.Resolve("office", "pdf")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out, err := c.Convert(context.Background(), []byte("doc"), "docx")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "pdf" {
		t.Fatalf("office->pdf must produce exactly one output, got %q", out)
	}
}

func TestPDFToImageReturnsPages(t *testing.T) {
	r := DefaultRegistry(&stubTools{})
	c, err := r.Resolve("pdf", "image")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out, err := c.Convert(context.Background(), []byte("doc"), "pdf")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 2 || string(out[0]) != "p1" || string(out[1]) != "p2" {
		t.Fatalf("pdf->image must keep page order, got %q", out)
	}
}
