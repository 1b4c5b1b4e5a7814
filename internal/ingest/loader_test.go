package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		filename string
		want     FileType
		ok       bool
	}{
		{"report.pdf", TypePDF, true},
		{"notes.TXT", TypeTXT, true},
		{"data.csv", TypeCSV, true},
		{"sheet.xlsx", TypeXLSX, true},
		{"legacy.xls", TypeXLS, true},
		{"letter.docx", "", false},
		{"noextension", "", false},
	}
	for _, tc := range tests {
		got, ok := DetectType(tc.filename)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("DetectType(%q) = (%q, %v), want (%q, %v)", tc.filename, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLoadTXT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	if err := os.WriteFile(path, []byte("  spaced   out\ntext  "), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	segments, err := Load(path, TypeTXT)
	if err != nil {
		t.Fatalf("load txt: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Text != "spaced out text" {
		t.Fatalf("unexpected text: %q", segments[0].Text)
	}
}

func TestLoadTXTEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("   \n  "), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path, TypeTXT); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	content := "name,age\nalice,30\nbob,41\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	segments, err := Load(path, TypeCSV)
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "name: alice\nage: 30" {
		t.Fatalf("unexpected row text: %q", segments[0].Text)
	}
	if segments[1].Metadata["row"] != "1" {
		t.Fatalf("unexpected row metadata: %v", segments[1].Metadata)
	}
}

func TestLoadCSVKeepsColumnLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messy.csv")
	content := "name,bio\ncarol,\"writes  docs\nand  code\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	segments, err := Load(path, TypeCSV)
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	// Whitespace collapses within a cell; the per-column line break stays.
	if segments[0].Text != "name: carol\nbio: writes docs and code" {
		t.Fatalf("unexpected row text: %q", segments[0].Text)
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, []byte("name,age\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path, TypeCSV); err == nil {
		t.Fatal("expected error for header-only csv")
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"city", "country"},
		{"Lisbon", "Portugal"},
		{"Osaka", "Japan"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	_ = f.Close()

	segments, err := Load(path, TypeXLSX)
	if err != nil {
		t.Fatalf("load xlsx: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "city: Lisbon\ncountry: Portugal" {
		t.Fatalf("unexpected row text: %q", segments[0].Text)
	}
	if segments[0].Metadata["sheet"] == "" {
		t.Fatalf("expected sheet metadata, got %v", segments[0].Metadata)
	}
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("same content"))
	b := HashBytes([]byte("same content"))
	c := HashBytes([]byte("other content"))
	if a != b {
		t.Fatalf("identical content hashed differently: %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("different content produced identical hash")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
