// Package table reads and writes comment tables as CSV or XLSX.
package table

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/storage/localfs"
)

type Options struct {
	// InputDelimiter disables sniffing when set.
	InputDelimiter rune
	// OutputDelimiter overrides the delimiter the table was read with.
	OutputDelimiter rune
}

type Store struct {
	storage *localfs.Storage
	opts    Options
}

func NewStore(storage *localfs.Storage, opts Options) *Store {
	return &Store{storage: storage, opts: opts}
}

func (s *Store) Read(ctx context.Context, path string) (*domain.Table, error) {
	rc, err := s.storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}

	var records [][]string
	delimiter := ','
	if isXLSX(path) {
		records, err = readXLSX(content)
	} else {
		records, delimiter, err = readCSV(content, s.opts.InputDelimiter)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse table "+path, err)
	}
	return buildTable(records, delimiter), nil
}

// Write replaces the file at path with the whole table.
func (s *Store) Write(ctx context.Context, path string, t *domain.Table) error {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Headers)
	for _, row := range t.Rows {
		records = append(records, t.Record(row))
	}

	var (
		content []byte
		err     error
	)
	if isXLSX(path) {
		content, err = writeXLSX(records)
	} else {
		delimiter := t.Delimiter
		if s.opts.OutputDelimiter != 0 {
			delimiter = s.opts.OutputDelimiter
		}
		content, err = writeCSV(records, delimiter)
	}
	if err != nil {
		return fmt.Errorf("encode table %s: %w", path, err)
	}
	if err := s.storage.Save(ctx, path, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("save table %s: %w", path, err)
	}
	return nil
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func buildTable(records [][]string, delimiter rune) *domain.Table {
	t := &domain.Table{Delimiter: delimiter}
	if len(records) == 0 {
		return t
	}
	t.Headers = make([]string, len(records[0]))
	for i, h := range records[0] {
		t.Headers[i] = strings.TrimSpace(h)
	}

	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		row := &domain.Row{Index: len(t.Rows), Values: make(map[string]string, len(t.Headers))}
		for i, h := range t.Headers {
			if i < len(record) {
				row.Values[h] = record[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
