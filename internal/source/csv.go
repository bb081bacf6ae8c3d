// Package source reads the delimited export file as a finite sequence of
// bounded chunks. The source is consumed once; re-running an ingestion means
// opening a new source.
package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/bank-ingest/internal/domain"
	"github.com/dvloznov/bank-ingest/internal/ingest"
)

// CSVSource yields chunks of rows from a comma-delimited file with a stable
// header row. Each chunk carries its original bytes (header included) so the
// backup side-channel can archive exactly what was read.
type CSVSource struct {
	f         *os.File
	scanner   *bufio.Scanner
	header    []string
	headerRaw string
	chunkSize int
	line      int
	index     int
	drained   bool
}

var _ ingest.ChunkSource = (*CSVSource)(nil)

// Open opens the file and reads its header row.
func Open(path string, chunkSize int) (*CSVSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("source: chunk size must be positive, got %d", chunkSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("source: read header of %q: %w", path, err)
		}
		_ = f.Close()
		return nil, fmt.Errorf("source: %q is empty", path)
	}

	headerRaw := scanner.Text()
	header, err := splitLine(headerRaw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("source: parse header of %q: %w", path, err)
	}

	return &CSVSource{
		f:         f,
		scanner:   scanner,
		header:    header,
		headerRaw: headerRaw,
		chunkSize: chunkSize,
		line:      1,
	}, nil
}

// Header returns the column names from the file's first row.
func (s *CSVSource) Header() []string {
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Next reads up to chunkSize rows and returns them as one chunk, or
// ingest.ErrSourceDrained once the file is exhausted. A line that does not
// split into the header's column count still produces a row, marked
// malformed, so the engine can count it instead of silently skipping it.
func (s *CSVSource) Next(ctx context.Context) (*ingest.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.drained {
		return nil, ingest.ErrSourceDrained
	}

	rows := make([]domain.RawRow, 0, s.chunkSize)
	var raw strings.Builder
	raw.WriteString(s.headerRaw)
	raw.WriteByte('\n')

	for len(rows) < s.chunkSize {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("source: read line %d: %w", s.line+1, err)
			}
			s.drained = true
			break
		}
		s.line++
		text := s.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		raw.WriteString(text)
		raw.WriteByte('\n')
		rows = append(rows, s.parseRow(text))
	}

	if len(rows) == 0 {
		return nil, ingest.ErrSourceDrained
	}

	s.index++
	return &ingest.Chunk{
		Index: s.index,
		Rows:  rows,
		Raw:   []byte(raw.String()),
	}, nil
}

func (s *CSVSource) parseRow(text string) domain.RawRow {
	row := domain.RawRow{Line: s.line}

	fields, err := splitLine(text)
	if err != nil {
		row.Malformed = fmt.Sprintf("line %d: %v", s.line, err)
		return row
	}
	if len(fields) != len(s.header) {
		row.Malformed = fmt.Sprintf("line %d: got %d fields, want %d", s.line, len(fields), len(s.header))
		return row
	}

	row.Fields = make(map[string]string, len(s.header))
	for i, name := range s.header {
		row.Fields[name] = fields[i]
	}
	return row
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.f.Close()
}

// splitLine parses one physical line as a CSV record. The export never quotes
// newlines inside fields, so line-at-a-time parsing is safe and lets each
// chunk keep its exact raw bytes.
func splitLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty record")
		}
		return nil, err
	}
	return fields, nil
}
