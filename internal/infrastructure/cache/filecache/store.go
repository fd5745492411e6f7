package filecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/cache"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/storage/localfs"
)

type format int

const (
	formatYAML format = iota
	formatJSON
)

// document is the on-disk layout. Fallback labels are kept apart so they can
// be reviewed or re-attempted.
type document struct {
	Labels    map[string]string `yaml:"labels" json:"labels"`
	Fallbacks map[string]string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
}

// Store keeps the label cache in a single human editable file.
type Store struct {
	key     string
	format  format
	storage *localfs.Storage
	index   *cache.Index
}

// Open loads the cache file at path. A missing file yields an empty store.
func Open(ctx context.Context, storage *localfs.Storage, path string) (*Store, error) {
	s := &Store{
		key:     path,
		format:  formatFor(path),
		storage: storage,
		index:   cache.NewIndex(),
	}

	rc, err := storage.Open(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open label cache: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read label cache: %w", err)
	}
	entries, err := decode(raw, s.format)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "load label cache "+path, err)
	}
	s.index.Load(entries...)
	return s, nil
}

func formatFor(path string) format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return formatJSON
	}
	return formatYAML
}

func (s *Store) Get(fingerprint string) (domain.CacheEntry, bool) {
	return s.index.Get(fingerprint)
}

func (s *Store) Put(entry domain.CacheEntry) bool {
	return s.index.Put(entry)
}

// Restrict lets labels outside the set be replaced on the next Put.
func (s *Store) Restrict(labels domain.LabelSet) int {
	return s.index.Restrict(labels)
}

func (s *Store) Len() int {
	return s.index.Len()
}

// Flush rewrites the whole file when anything changed since the last flush.
func (s *Store) Flush(ctx context.Context) error {
	pending := s.index.Pending()
	if len(pending) == 0 {
		return nil
	}
	raw, err := encode(s.index.Snapshot(), s.format)
	if err != nil {
		return fmt.Errorf("encode label cache: %w", err)
	}
	if err := s.storage.Save(ctx, s.key, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("save label cache: %w", err)
	}
	s.index.MarkFlushed(pending)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func decode(raw []byte, f format) ([]domain.CacheEntry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var generic map[string]any
	var err error
	if f == formatJSON {
		err = json.Unmarshal(raw, &generic)
	} else {
		err = yaml.Unmarshal(raw, &generic)
	}
	if err != nil {
		return nil, err
	}

	_, structured := generic["labels"].(map[string]any)
	if !structured {
		// Flat fingerprint to label map.
		entries := make([]domain.CacheEntry, 0, len(generic))
		for fp, v := range generic {
			if label, ok := v.(string); ok {
				entries = append(entries, domain.CacheEntry{Fingerprint: fp, Label: domain.Label(label), Source: domain.SourceModel})
			}
		}
		return entries, nil
	}

	var doc document
	if f == formatJSON {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CacheEntry, 0, len(doc.Labels)+len(doc.Fallbacks))
	for fp, label := range doc.Labels {
		entries = append(entries, domain.CacheEntry{Fingerprint: fp, Label: domain.Label(label), Source: domain.SourceModel})
	}
	for fp, label := range doc.Fallbacks {
		entries = append(entries, domain.CacheEntry{Fingerprint: fp, Label: domain.Label(label), Source: domain.SourceFallback})
	}
	return entries, nil
}

func encode(entries []domain.CacheEntry, f format) ([]byte, error) {
	doc := document{Labels: make(map[string]string, len(entries))}
	for _, e := range entries {
		if e.Source == domain.SourceFallback {
			if doc.Fallbacks == nil {
				doc.Fallbacks = make(map[string]string)
			}
			doc.Fallbacks[e.Fingerprint] = string(e.Label)
			continue
		}
		doc.Labels[e.Fingerprint] = string(e.Label)
	}

	var buf bytes.Buffer
	if f == formatJSON {
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
