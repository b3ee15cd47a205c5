// Package id generates the identifiers attached to stored trace records.
//
// Record IDs are prefixed ULIDs ("rec_01H..."), so they sort by creation
// time and stay readable in logs and in the appstats UI.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RecordID identifies one recorded request trace
type RecordID string

// RecordPrefix is prepended to every RecordID
const RecordPrefix = "rec"

// Generator generates ULIDs from a shared entropy source
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// GenerateAt creates a ULID whose timestamp component is t
func (g *Generator) GenerateAt(t time.Time) ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string stamped with t
func (g *Generator) GenerateWithPrefix(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateAt(t).String())
}

// NewRecordID generates a record ID stamped with the request start time
func NewRecordID(start time.Time) RecordID {
	return RecordID(Default().GenerateWithPrefix(RecordPrefix, start))
}

func (id RecordID) String() string { return string(id) }

// Timestamp extracts the creation time encoded in a record ID
func (id RecordID) Timestamp() (time.Time, error) {
	raw := strings.TrimPrefix(string(id), RecordPrefix+"_")
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}

// IsValid checks if an ID string is a valid ULID, with or without prefix
func IsValid(id string) bool {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	_, err := ulid.Parse(id)
	return err == nil
}
