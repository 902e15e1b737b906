package convert

import (
  "context"
  "github.com/docpress/docpress-backend/internal/pdftools"
)

// DefaultRegistry wires the conversion pairs the pipeline supports today.
func DefaultRegistry(tools pdftools.Tools) *Registry {
  r := NewRegistry()
  r.Register(Key{From: FamilyOffice, To: FamilyPDF}, &officeToPDF{tools: tools})
  r.Register(Key{From: FamilyPDF, To: FamilyImage}, &pdfToImage{tools: tools})
  return r
}

type officeToPDF struct {
  tools pdftools.Tools
}

func (c *officeToPDF) Convert(ctx context.Context, input []byte, fromType string) ([][]byte, error) {
  out, err := c.tools.ConvertOfficeToPDF(ctx, input, fromType)
  if err != nil {
    return nil, err
  }
  return [][]byte{out}, nil
}

func (c *officeToPDF) OutputExt() string { return ".pdf" }
func (c *officeToPDF) OneToMany() bool   { return false }

type pdfToImage struct {
  tools pdftools.Tools
}

func (c *pdfToImage) Convert(ctx context.Context, input []byte, fromType string) ([][]byte, error) {
  return c.tools.RenderPDFToImages(ctx, input, pdftools.RenderOptions{Format: "png"})
}

func (c *pdfToImage) OutputExt() string { return ".png" }
func (c *pdfToImage) OneToMany() bool   { return true }
