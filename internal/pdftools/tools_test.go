package pdftools

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docpress/docpress-backend/internal/logger"
)

func TestPageSpec(t *testing.T) {
	tests := []struct {
		name  string
		pages []int
		want  string
	}{
		{"single", []int{2}, "2"},
		{"ordered", []int{1, 2, 3}, "1,2,3"},
		{"order preserved", []int{3, 1, 2}, "3,1,2"},
		{"repeats kept", []int{3, 1, 1}, "3,1,1"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PageSpec(tt.pages); got != tt.want {
				t.Fatalf("PageSpec(%v) = %q, want %q", tt.pages, got, tt.want)
			}
		})
	}
}

func TestStageWritesInputAndCleansUp(t *testing.T) {
	m := New(logger.NewNop()).(*tools)
	m.workRoot = t.TempDir()

	inPath, outDir, cleanup, err := m.stage([]byte("content"), "docx")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if filepath.Ext(inPath) != ".docx" {
		t.Fatalf("staged path %q should carry the .docx suffix", inPath)
	}
	data, err := os.ReadFile(inPath)
	if err != nil || string(data) != "content" {
		t.Fatalf("staged file should hold the input bytes, got %q err=%v", data, err)
	}
	if filepath.Dir(inPath) != outDir {
		t.Fatalf("input %q should live inside the out dir %q", inPath, outDir)
	}

	cleanup()
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("cleanup should remove the work dir, stat err = %v", err)
	}
}

func TestStageRejectsEmptyInput(t *testing.T) {
	m := New(logger.NewNop()).(*tools)
	m.workRoot = t.TempDir()
	if _, _, _, err := m.stage(nil, ".pdf"); err == nil {
		t.Fatalf("stage with empty input must fail")
	}
}

func TestGlobSortedOrdersRenderedPages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-2.png", "page-1.png", "page-3.png", "ignore.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	got, err := globSorted(dir, `^page-\d+\.(png|jpe?g)$`)
	if err != nil {
		t.Fatalf("globSorted: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d paths, want 3", len(got))
	}
	for i, want := range []string{"page-1.png", "page-2.png", "page-3.png"} {
		if filepath.Base(got[i]) != want {
			t.Fatalf("paths = %v, want pages in order", got)
		}
	}
}

func TestNewestFileWithExt(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.pdf")
	newer := filepath.Join(dir, "newer.pdf")
	if err := os.WriteFile(older, []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(newer, []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(newer, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := newestFileWithExt(dir, ".pdf")
	if err != nil {
		t.Fatalf("newestFileWithExt: %v", err)
	}
	if got != newer {
		t.Fatalf("got %q, want the most recent pdf %q", got, newer)
	}

	if _, err := newestFileWithExt(dir, ".png"); err == nil {
		t.Fatalf("no matching files must be an error")
	}
}
