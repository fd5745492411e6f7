package rediscache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/cache"
)

const keyPrefix = "labeler"

// Store keeps the label cache in two redis hashes per task, one for model
// and heuristic labels and one for fallbacks.
type Store struct {
	client *redis.Client
	task   string
	index  *cache.Index
}

func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "parse redis url", err)
	}
	return redis.NewClient(opts), nil
}

// Open pings redis and loads both hashes of the task.
func Open(ctx context.Context, client *redis.Client, task string) (*Store, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := &Store{client: client, task: task, index: cache.NewIndex()}

	labels, err := client.HGetAll(ctx, s.labelsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	fallbacks, err := client.HGetAll(ctx, s.fallbacksKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load fallbacks: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(labels)+len(fallbacks))
	for fp, label := range labels {
		entries = append(entries, domain.CacheEntry{Fingerprint: fp, Label: domain.Label(label), Source: domain.SourceModel})
	}
	for fp, label := range fallbacks {
		entries = append(entries, domain.CacheEntry{Fingerprint: fp, Label: domain.Label(label), Source: domain.SourceFallback})
	}
	s.index.Load(entries...)
	return s, nil
}

func (s *Store) labelsKey() string {
	return fmt.Sprintf("%s:%s:labels", keyPrefix, s.task)
}

func (s *Store) fallbacksKey() string {
	return fmt.Sprintf("%s:%s:fallbacks", keyPrefix, s.task)
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

// Flush writes pending entries in one pipeline. HSETNX keeps labels written
// by another run intact, except for entries replacing out-of-set labels.
func (s *Store) Flush(ctx context.Context) error {
	pending := s.index.Pending()
	if len(pending) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range pending {
			if s.index.Overwrites(e.Fingerprint) {
				target, other := s.labelsKey(), s.fallbacksKey()
				if e.Source == domain.SourceFallback {
					target, other = other, target
				}
				pipe.HSet(ctx, target, e.Fingerprint, string(e.Label))
				pipe.HDel(ctx, other, e.Fingerprint)
				continue
			}
			if e.Source == domain.SourceFallback {
				pipe.HSetNX(ctx, s.fallbacksKey(), e.Fingerprint, string(e.Label))
				continue
			}
			pipe.HSetNX(ctx, s.labelsKey(), e.Fingerprint, string(e.Label))
			pipe.HDel(ctx, s.fallbacksKey(), e.Fingerprint)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flush labels to redis: %w", err)
	}
	s.index.MarkFlushed(pending)
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
