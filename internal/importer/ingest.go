package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chlear/crm/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not CSV or Excel.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrPayloadTooLarge is returned when the upload exceeds the configured byte limit.
	ErrPayloadTooLarge = errors.New("file exceeds the configured size limit")
	// ErrTooManyRows is returned when the upload exceeds the configured row limit.
	ErrTooManyRows = errors.New("file exceeds the configured row limit")
	// ErrEmptyFile is returned for empty or header-only uploads.
	ErrEmptyFile = errors.New("file is empty")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// RowReader yields data rows lazily, in file order. It is a single-pass
// sequence; restarting requires re-opening the file. Next returns io.EOF
// when the file is exhausted.
type RowReader interface {
	Next() (domain.RawRow, error)
	Close() error
}

// Ingestor parses uploaded CSV/Excel files into a header list and a lazy
// row stream, enforcing the configured size and row bounds.
type Ingestor struct {
	maxFileBytes int64
	maxRows      int
}

// NewIngestor creates an ingestor with the given upload bounds. Zero or
// negative bounds disable the respective check.
func NewIngestor(maxFileBytes int64, maxRows int) *Ingestor {
	return &Ingestor{maxFileBytes: maxFileBytes, maxRows: maxRows}
}

// Open detects the file format by extension and returns the header row plus
// a lazy reader over the data rows. Data rows are numbered 1..N, header
// excluded; blank lines do not consume numbers.
func (g *Ingestor) Open(fileName string, payload []byte) ([]string, RowReader, error) {
	if g.maxFileBytes > 0 && int64(len(payload)) > g.maxFileBytes {
		return nil, nil, ErrPayloadTooLarge
	}
	if len(payload) == 0 {
		return nil, nil, ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return g.openCSV(payload)
	case ".xlsx", ".xls":
		return g.openExcel(payload)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (g *Ingestor) openCSV(payload []byte) ([]string, RowReader, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	// First non-empty record is the header row.
	var headers []string
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			return nil, nil, ErrEmptyFile
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if !recordEmpty(record) {
			headers = trimRecord(record)
			break
		}
	}

	return headers, &csvRowReader{
		headers: headers,
		reader:  csvReader,
		maxRows: g.maxRows,
	}, nil
}

func (g *Ingestor) openExcel(payload []byte) ([]string, RowReader, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, nil, ErrEmptyFile
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to read rows from spreadsheet: %w", err)
	}

	var headers []string
	for iter.Next() {
		record, err := iter.Columns()
		if err != nil {
			_ = iter.Close()
			_ = f.Close()
			return nil, nil, fmt.Errorf("failed to read header row: %w", err)
		}
		if !recordEmpty(record) {
			headers = trimRecord(record)
			break
		}
	}
	if headers == nil {
		_ = iter.Close()
		_ = f.Close()
		return nil, nil, ErrEmptyFile
	}

	return headers, &excelRowReader{
		headers: headers,
		file:    f,
		iter:    iter,
		maxRows: g.maxRows,
	}, nil
}

type csvRowReader struct {
	headers []string
	reader  *csv.Reader
	maxRows int
	count   int
}

func (r *csvRowReader) Next() (domain.RawRow, error) {
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			return domain.RawRow{}, io.EOF
		}
		if err != nil {
			return domain.RawRow{}, fmt.Errorf("failed to read csv row: %w", err)
		}
		if recordEmpty(record) {
			continue
		}
		if r.maxRows > 0 && r.count >= r.maxRows {
			return domain.RawRow{}, ErrTooManyRows
		}
		r.count++
		return buildRawRow(r.headers, record, r.count), nil
	}
}

func (r *csvRowReader) Close() error { return nil }

type excelRowReader struct {
	headers []string
	file    *excelize.File
	iter    *excelize.Rows
	maxRows int
	count   int
}

func (r *excelRowReader) Next() (domain.RawRow, error) {
	for r.iter.Next() {
		record, err := r.iter.Columns()
		if err != nil {
			return domain.RawRow{}, fmt.Errorf("failed to read spreadsheet row: %w", err)
		}
		if recordEmpty(record) {
			continue
		}
		if r.maxRows > 0 && r.count >= r.maxRows {
			return domain.RawRow{}, ErrTooManyRows
		}
		r.count++
		return buildRawRow(r.headers, record, r.count), nil
	}
	if err := r.iter.Error(); err != nil {
		return domain.RawRow{}, fmt.Errorf("failed to iterate spreadsheet rows: %w", err)
	}
	return domain.RawRow{}, io.EOF
}

func (r *excelRowReader) Close() error {
	_ = r.iter.Close()
	return r.file.Close()
}

func buildRawRow(headers []string, record []string, number int) domain.RawRow {
	values := make(map[string]string, len(headers))
	for i, header := range headers {
		if header == "" {
			continue
		}
		if i < len(record) {
			values[header] = strings.TrimSpace(record[i])
		} else {
			values[header] = ""
		}
	}
	return domain.RawRow{Number: number, Values: values}
}

func recordEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimRecord(record []string) []string {
	trimmed := make([]string, len(record))
	for i, cell := range record {
		trimmed[i] = strings.TrimSpace(cell)
	}
	return trimmed
}
