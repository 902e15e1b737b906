package convert

import (
  "context"
  "errors"
  "fmt"
  "strings"
)

// Family is the coarse format family a converter is keyed by. Concrete types
// (docx, xlsx, png, ...) only influence the operation tag, not dispatch.
type Family string

const (
  FamilyOffice Family = "office"
  FamilyPDF    Family = "pdf"
  FamilyImage  Family = "image"
)

type Key struct {
  From Family
  To   Family
}

var ErrUnsupported = errors.New("unsupported conversion pair")

// Converter is an opaque transform: input bytes in, one or more output
// artifacts out. One-to-many converters (pdf -> image per page) return the
// outputs in page order.
type Converter interface {
  Convert(ctx context.Context, input []byte, fromType string) ([][]byte, error)
  OutputExt() string
  OneToMany() bool
}

type Registry struct {
  converters map[Key]Converter
}

func NewRegistry() *Registry {
  return &Registry{converters: map[Key]Converter{}}
}

func (r *Registry) Register(key Key, c Converter) {
  r.converters[key] = c
}

// Resolve looks a converter up by the (from, to) family pair. Unknown pairs
// fail with ErrUnsupported before any side effect happens.
func (r *Registry) Resolve(from, to string) (Converter, error) {
  key := Key{
    From: Family(strings.ToLower(strings.TrimSpace(from))),
    To:   Family(strings.ToLower(strings.TrimSpace(to))),
  }
  c, ok := r.converters[key]
  if !ok {
    return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupported, from, to)
  }
  return c, nil
}
