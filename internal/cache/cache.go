// Package cache maps the content hash of an item to the facts and decision
// computed for it, so unchanged items are never extracted twice.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"time"

	"github.com/steveyegge/triage/internal/types"
)

// HashSize is the digest length in bytes
const HashSize = sha256.Size

// Hash is the content digest of an item
type Hash [HashSize]byte

// ComputeHash digests the stable text fields of an item. Every field is
// length-prefixed, so moving text between title, body and comments always
// changes the digest.
func ComputeHash(title, body string, comments []string) Hash {
	h := sha256.New()
	writeField(h, title)
	writeField(h, body)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(comments)))
	h.Write(n[:])
	for _, c := range comments {
		writeField(h, c)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashItem is ComputeHash over an item's title, body and comments
func HashItem(item *types.Item) Hash {
	return ComputeHash(item.Title, item.Body, item.Comments)
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// String returns the lowercase hex form
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 12 hex characters, for logs
func (h Hash) Short() string { return h.String()[:12] }

// IsZero reports whether h is the zero digest
func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash parses the hex form produced by String
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid content hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid content hash %q: want %d bytes, got %d", s, HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Entry is one cached result. Entries are keyed by Hash and replaced
// wholesale, never edited in place.
type Entry struct {
	Hash      Hash               `json:"hash"`
	Facts     types.FactSet      `json:"facts"`
	Decision  types.TriageAction `json:"decision"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store is a persistent content cache. Lookup returns (nil, nil) on a miss.
// Storing the same facts and decision again must leave the entry
// (including CreatedAt) unchanged; a different decision replaces it.
type Store interface {
	Lookup(ctx context.Context, h Hash) (*Entry, error)
	Store(ctx context.Context, h Hash, facts types.FactSet, decision types.TriageAction) error
	Close() error
}

// Stats describes a store for the cache stats command
type Stats struct {
	Backend  string `json:"backend"`
	Location string `json:"location,omitempty"`
	Entries  int    `json:"entries"`
}

// StatsReporter is implemented by stores that can count their entries
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}

// EncodePayload returns the canonical JSON encodings of facts and decision.
// SQL backends compare these to keep repeated stores idempotent.
func EncodePayload(facts types.FactSet, decision types.TriageAction) (factsJSON, decisionJSON []byte, err error) {
	factsJSON, err = json.Marshal(facts)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding facts: %w", err)
	}
	decisionJSON, err = json.Marshal(decision)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding decision: %w", err)
	}
	return factsJSON, decisionJSON, nil
}

// DecodePayload is the inverse of EncodePayload
func DecodePayload(h Hash, factsJSON, decisionJSON []byte, createdAt time.Time) (*Entry, error) {
	e := &Entry{Hash: h, CreatedAt: createdAt}
	if err := json.Unmarshal(factsJSON, &e.Facts); err != nil {
		return nil, fmt.Errorf("decoding cached facts: %w", err)
	}
	if err := json.Unmarshal(decisionJSON, &e.Decision); err != nil {
		return nil, fmt.Errorf("decoding cached decision: %w", err)
	}
	return e, nil
}

// samePayload reports whether an entry already holds facts and decision
func samePayload(e *Entry, facts types.FactSet, decision types.TriageAction) bool {
	a1, b1, err := EncodePayload(e.Facts, e.Decision)
	if err != nil {
		return false
	}
	a2, b2, err := EncodePayload(facts, decision)
	if err != nil {
		return false
	}
	return bytes.Equal(a1, a2) && bytes.Equal(b1, b2)
}
