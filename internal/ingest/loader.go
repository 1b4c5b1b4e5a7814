package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// FileType is a supported document format.
type FileType string

const (
	TypePDF  FileType = "pdf"
	TypeTXT  FileType = "txt"
	TypeCSV  FileType = "csv"
	TypeXLSX FileType = "xlsx"
	TypeXLS  FileType = "xls"
)

// Segment is one raw text unit produced by a loader (a PDF page, a CSV
// row, a spreadsheet row, or a whole text file) before chunking.
type Segment struct {
	Text     string
	Metadata map[string]string
}

// DetectType maps a filename extension to a supported file type.
func DetectType(filename string) (FileType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "pdf":
		return TypePDF, true
	case "txt":
		return TypeTXT, true
	case "csv":
		return TypeCSV, true
	case "xlsx":
		return TypeXLSX, true
	case "xls":
		return TypeXLS, true
	default:
		return "", false
	}
}

// Load reads the file at path and converts it into raw text segments
// using the loader for its type.
func Load(path string, fileType FileType) ([]Segment, error) {
	switch fileType {
	case TypePDF:
		return loadPDF(path)
	case TypeTXT:
		return loadTXT(path)
	case TypeCSV:
		return loadCSV(path)
	case TypeXLSX:
		return loadXLSX(path)
	case TypeXLS:
		return loadXLS(path)
	default:
		return nil, fmt.Errorf("no loader for file type %q", fileType)
	}
}

func loadPDF(path string) ([]Segment, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	totalPages := reader.NumPage()
	var segments []Segment
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		text = NormalizeText(text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Metadata: map[string]string{"page": strconv.Itoa(i)},
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no text extracted from pdf")
	}
	return segments, nil
}

func loadTXT(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := NormalizeText(string(data))
	if text == "" {
		return nil, fmt.Errorf("no text extracted from file")
	}
	return []Segment{{Text: text, Metadata: map[string]string{}}}, nil
}

func loadCSV(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	header := records[0]
	segments := make([]Segment, 0, len(records)-1)
	for i, record := range records[1:] {
		text := rowText(header, record)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Metadata: map[string]string{"row": strconv.Itoa(i)},
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	return segments, nil
}

func loadXLSX(path string) ([]Segment, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	var segments []Segment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		header := rows[0]
		for i, row := range rows[1:] {
			text := rowText(header, row)
			if text == "" {
				continue
			}
			segments = append(segments, Segment{
				Text: text,
				Metadata: map[string]string{
					"sheet": sheet,
					"row":   strconv.Itoa(i),
				},
			})
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no rows extracted from workbook")
	}
	return segments, nil
}

func loadXLS(path string) ([]Segment, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	var segments []Segment
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil || sheet.MaxRow < 1 {
			continue
		}
		headerRow := sheet.Row(0)
		if headerRow == nil {
			continue
		}
		header := rowCells(headerRow)
		for j := 1; j <= int(sheet.MaxRow); j++ {
			row := sheet.Row(j)
			if row == nil {
				continue
			}
			text := rowText(header, rowCells(row))
			if text == "" {
				continue
			}
			segments = append(segments, Segment{
				Text: text,
				Metadata: map[string]string{
					"sheet": sheet.Name,
					"row":   strconv.Itoa(j - 1),
				},
			})
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no rows extracted from workbook")
	}
	return segments, nil
}

func rowCells(row *xls.Row) []string {
	cells := make([]string, 0, row.LastCol()+1)
	for k := row.FirstCol(); k <= row.LastCol(); k++ {
		cells = append(cells, row.Col(k))
	}
	return cells
}

// rowText renders a data row as "column: value" lines, one per column,
// mirroring how spreadsheet rows read best as retrieval context. Each
// cell is normalized on its own so the per-column line breaks survive.
func rowText(header, record []string) string {
	var sb strings.Builder
	for i, value := range record {
		value = NormalizeText(value)
		if value == "" {
			continue
		}
		column := fmt.Sprintf("col%d", i)
		if i < len(header) {
			if name := NormalizeText(header[i]); name != "" {
				column = name
			}
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(column)
		sb.WriteString(": ")
		sb.WriteString(value)
	}
	return sb.String()
}
