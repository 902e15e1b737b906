package pdftools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docpress/docpress-backend/internal/logger"
)

// Tools is the glue around the document codec binaries. Everything byte-level
// happens outside the process; this package only moves bytes in and out.
//
// REQUIRED BINARIES in the runtime image:
// - libreoffice (soffice) for office -> PDF
// - poppler-utils (pdftoppm, pdfinfo, pdfunite) for rasterization, page
//   counts and merging
// - qpdf for page extraction
// - ghostscript (gs) for PDF compression
type Tools interface {
	AssertReady(ctx context.Context) error

	ConvertOfficeToPDF(ctx context.Context, input []byte, ext string) ([]byte, error)
	RenderPDFToImages(ctx context.Context, input []byte, opts RenderOptions) ([][]byte, error)
	MergePDFs(ctx context.Context, inputs [][]byte) ([]byte, error)
	ExtractPDFPages(ctx context.Context, input []byte, pages []int) ([]byte, error)
	CompressPDF(ctx context.Context, input []byte) ([]byte, error)
	CountPDFPages(ctx context.Context, input []byte) (int, error)
}

type RenderOptions struct {
	DPI    int
	Format string // "png" or "jpeg"
}

type tools struct {
	log *logger.Logger

	sofficePath  string
	pdftoppmPath string
	pdfinfoPath  string
	pdfunitePath string
	qpdfPath     string
	gsPath       string

	workRoot string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	slog := log.With("service", "PDFTools")
	return &tools{
		log:            slog,
		sofficePath:    "soffice",
		pdftoppmPath:   "pdftoppm",
		pdfinfoPath:    "pdfinfo",
		pdfunitePath:   "pdfunite",
		qpdfPath:       "qpdf",
		gsPath:         "gs",
		workRoot:       "/tmp/docpress-pdftools",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.sofficePath, m.pdftoppmPath, m.pdfinfoPath, m.pdfunitePath, m.qpdfPath, m.gsPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) ConvertOfficeToPDF(ctx context.Context, input []byte, ext string) ([]byte, error) {
	inPath, outDir, cleanup, err := m.stage(input, ext)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.sofficePath,
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("soffice convert failed: %w; out=%s", err, string(out))
	}

	base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, statErr := os.Stat(pdfPath); statErr != nil {
		pdfPath2, err2 := newestFileWithExt(outDir, ".pdf")
		if err2 != nil {
			return nil, fmt.Errorf("pdf output not found at %s and scan failed: %v; soffice out=%s", pdfPath, err2, string(out))
		}
		pdfPath = pdfPath2
	}
	return os.ReadFile(pdfPath)
}

func (m *tools) RenderPDFToImages(ctx context.Context, input []byte, opts RenderOptions) ([][]byte, error) {
	inPath, outDir, cleanup, err := m.stage(input, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 200
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		return nil, fmt.Errorf("unsupported render format: %s", format)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	args := []string{"-r", strconv.Itoa(dpi)}
	if format == "png" {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg")
	}
	args = append(args, inPath, prefix)

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(outDir, `^page-\d+\.(png|jpe?g)$`)
	if err != nil || len(paths) == 0 {
		return nil, fmt.Errorf("no images produced by pdftoppm; out=%s", string(out))
	}
	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read rendered page %s: %w", p, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

func (m *tools) MergePDFs(ctx context.Context, inputs [][]byte) ([]byte, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("merge needs at least 2 inputs, got %d", len(inputs))
	}
	outDir, err := m.tempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	// pdfunite concatenates pages in argument order, which is input order.
	inPaths := make([]string, 0, len(inputs))
	for i, in := range inputs {
		p := filepath.Join(outDir, fmt.Sprintf("in_%02d.pdf", i))
		if err := os.WriteFile(p, in, 0o644); err != nil {
			return nil, fmt.Errorf("write merge input %d: %w", i, err)
		}
		inPaths = append(inPaths, p)
	}
	outPath := filepath.Join(outDir, "merged.pdf")

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := append(inPaths, outPath)
	cmd := exec.CommandContext(ctx, m.pdfunitePath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdfunite failed: %w; out=%s", err, string(out))
	}
	return os.ReadFile(outPath)
}

func (m *tools) ExtractPDFPages(ctx context.Context, input []byte, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages requested")
	}
	for _, p := range pages {
		if p < 1 {
			return nil, fmt.Errorf("page numbers are 1-based, got %d", p)
		}
	}
	inPath, outDir, cleanup, err := m.stage(input, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	outPath := filepath.Join(outDir, "split.pdf")

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// qpdf keeps the requested order and allows repeats, e.g. "3,1,1".
	cmd := exec.CommandContext(ctx, m.qpdfPath,
		"--empty",
		"--pages", inPath, PageSpec(pages), "--",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("qpdf page extraction failed: %w; out=%s", err, string(out))
	}
	return os.ReadFile(outPath)
}

func (m *tools) CompressPDF(ctx context.Context, input []byte) ([]byte, error) {
	inPath, outDir, cleanup, err := m.stage(input, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	outPath := filepath.Join(outDir, "compressed.pdf")

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.gsPath,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/ebook",
		"-dNOPAUSE",
		"-dBATCH",
		"-dQUIET",
		"-o", outPath,
		inPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gs compress failed: %w; out=%s", err, string(out))
	}
	return os.ReadFile(outPath)
}

func (m *tools) CountPDFPages(ctx context.Context, input []byte) (int, error) {
	inPath, _, cleanup, err := m.stage(input, ".pdf")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdfinfoPath, inPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w; out=%s", err, string(out))
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || n <= 0 {
			continue
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output missing Pages field")
}

// PageSpec renders a 1-based page list as a qpdf page range, preserving the
// given order including repeats.
func PageSpec(pages []int) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

// ---------- helpers ----------

func (m *tools) tempDir() (string, error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(m.workRoot, "op_")
	if err != nil {
		return "", fmt.Errorf("mkdir temp: %w", err)
	}
	return dir, nil
}

// stage writes input into a fresh work dir and hands back the input path, an
// output dir next to it, and a cleanup func.
func (m *tools) stage(input []byte, suffix string) (string, string, func(), error) {
	if len(input) == 0 {
		return "", "", func() {}, fmt.Errorf("empty input")
	}
	dir, err := m.tempDir()
	if err != nil {
		return "", "", func() {}, err
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	h := sha256.Sum256(input)
	inPath := filepath.Join(dir, hex.EncodeToString(h[:])[:16]+suffix)
	if err := os.WriteFile(inPath, input, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return inPath, dir, cleanup, nil
}

func newestFileWithExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no %s files in %s", ext, dir)
	}
	return newest, nil
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
