// internal/catalog/catalog.go
//
// Read-only alias catalog for guessable tracks.
//
// Responsibilities:
//   - Load the id → alias-set table from a YAML or JSON file, or fall back
//     to a small embedded default table.
//   - Maintain the forward index (AnswerID → AliasSet) and the reverse
//     index (one entry per normalized alias, in a stable order).
//   - Supply utility functions like RandomID and Lookup.
//
// Constraints:
//   • Every alias set holds 1–3 display names; anything else is a data error.
//   • The catalog is immutable after Load and therefore safe to share
//     between goroutines without locking.
//
// Environment:
//   CATALOG_FILE=/path/to/catalog.yaml (or .json)

package catalog

import (
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnswerID is the canonical identifier of a guessable track.
type AnswerID string

// AliasSet holds the 1–3 display names of one track: primary name first,
// optional alternates after.
type AliasSet []string

// Entry is one reverse-index row: a normalized alias and the id it names.
type Entry struct {
	Alias string
	ID    AnswerID
}

var (
	// ErrNotFound reports a lookup of an id the catalog does not contain.
	// Ids are generated internally, so hitting this means a caller bug.
	ErrNotFound = errors.New("catalog: answer id not found")

	// ErrBadAliasSet reports an alias set whose length is outside 1–3.
	ErrBadAliasSet = errors.New("catalog: alias set must hold 1-3 names")
)

// Embedded fallback table so the service runs with no CATALOG_FILE configured.
//
//go:embed default_catalog.yaml
var embeddedCatalog []byte

// Catalog is the immutable bidirectional index built once at startup.
type Catalog struct {
	forward map[AnswerID]AliasSet
	reverse []Entry    // one row per alias, stable order
	ids     []AnswerID // sorted, for uniform random selection
}

// Load builds a Catalog from the table at path. An empty path selects the
// embedded default table. ".yaml"/".yml" parse as YAML, anything else as
// JSON (the upstream metadata table is JSON).
func Load(path string) (*Catalog, error) {
	raw := embeddedCatalog
	useYAML := true
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		raw = b
		ext := strings.ToLower(filepath.Ext(path))
		useYAML = ext == ".yaml" || ext == ".yml"
	}

	table := map[string][]string{}
	if useYAML {
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("catalog: parse yaml: %w", err)
		}
	} else {
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("catalog: parse json: %w", err)
		}
	}
	return build(table)
}

// build validates the raw table and freezes both indexes.
// Ids iterate in sorted order so reverse-index order (and with it the
// matcher's tie-break) is reproducible across runs.
func build(table map[string][]string) (*Catalog, error) {
	if len(table) == 0 {
		return nil, errors.New("catalog: table is empty")
	}
	c := &Catalog{forward: make(map[AnswerID]AliasSet, len(table))}
	for id, names := range table {
		if len(names) < 1 || len(names) > 3 {
			return nil, fmt.Errorf("%w: id %q has %d", ErrBadAliasSet, id, len(names))
		}
		aliases := make(AliasSet, len(names))
		copy(aliases, names)
		c.forward[AnswerID(id)] = aliases
		c.ids = append(c.ids, AnswerID(id))
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })

	for _, id := range c.ids {
		for _, name := range c.forward[id] {
			c.reverse = append(c.reverse, Entry{Alias: Normalize(name), ID: id})
		}
	}
	return c, nil
}

// Lookup returns the alias set for id.
func (c *Catalog) Lookup(id AnswerID) (AliasSet, error) {
	if set, ok := c.forward[id]; ok {
		return set, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// All returns the reverse index: one row per alias, in the catalog's
// stable iteration order. Callers must treat the slice as read-only.
func (c *Catalog) All() []Entry { return c.reverse }

// IDs returns every answer id in sorted order. Read-only.
func (c *Catalog) IDs() []AnswerID { return c.ids }

// Len reports the number of answer ids in the catalog.
func (c *Catalog) Len() int { return len(c.ids) }

// RandomID picks an answer id uniformly at random.
func (c *Catalog) RandomID() (AnswerID, error) {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(c.ids))))
	if err != nil {
		return "", fmt.Errorf("catalog: random id: %w", err)
	}
	return c.ids[nBig.Int64()], nil
}
