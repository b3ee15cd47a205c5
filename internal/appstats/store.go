package appstats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bdarnell/tornado-tracing/internal/cache"
)

const (
	partSuffix = "__part"
	fullSuffix = "__full"
)

// ErrNotFound is returned by Full when no record exists for a time.
var ErrNotFound = errors.New("appstats: record not found")

// Store maps records onto a ring of time-derived cache keys.
type Store struct {
	client cache.Client
	opts   Options
	width  int
}

// NewStore creates a store over client.
func NewStore(client cache.Client, opts Options) *Store {
	return &Store{
		client: client,
		opts:   opts,
		width:  len(strconv.FormatInt(opts.KeyModulus-1, 10)),
	}
}

// Key returns the slot key for a request started at t.
func (s *Store) Key(t time.Time) string {
	slot := (t.UnixMilli() / s.opts.KeyDistance) % s.opts.KeyModulus
	return fmt.Sprintf("%s%0*d", s.opts.KeyPrefix, s.width, slot)
}

// Save writes the summary and the full record for r.
func (s *Store) Save(ctx context.Context, r Record) error {
	part, err := encodeSummary(Summarize(r))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	full, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	key := s.Key(r.Start)
	items := map[string][]byte{
		key + partSuffix: part,
		key + fullSuffix: full,
	}
	if err := s.client.SetMulti(ctx, items, s.opts.RecordTTL, s.opts.KeyNamespace); err != nil {
		return fmt.Errorf("store record %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns every stored summary, newest first.
func (s *Store) Recent(ctx context.Context) ([]Summary, error) {
	keys := make([]string, 0, s.opts.KeyModulus)
	for slot := int64(0); slot < s.opts.KeyModulus; slot++ {
		keys = append(keys, fmt.Sprintf("%s%0*d%s", s.opts.KeyPrefix, s.width, slot, partSuffix))
	}

	values, err := s.client.GetMulti(ctx, keys, s.opts.KeyNamespace)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}

	summaries := make([]Summary, 0, len(values))
	for _, data := range values {
		summary, err := decodeSummary(data)
		if err != nil {
			// a foreign or truncated value in our key space; skip it
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Start > summaries[j].Start
	})
	return summaries, nil
}

// Full loads the record of the request that started at startMillis.
func (s *Store) Full(ctx context.Context, startMillis int64) (Record, error) {
	key := s.Key(time.UnixMilli(startMillis)) + fullSuffix
	data, err := s.client.Get(ctx, key, s.opts.KeyNamespace)
	if errors.Is(err, cache.ErrCacheMiss) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}

	r, err := decodeRecord(data)
	if err != nil {
		return Record{}, err
	}
	// the slot has been reused by a later request
	if r.Start.UnixMilli() != startMillis {
		return Record{}, ErrNotFound
	}
	return r, nil
}
