// internal/match/matcher.go
//
// Fuzzy alias matcher.
//
// Responsibilities:
//   - Consume the catalog's reverse index once at construction.
//   - For free text, rank every answer id by the best similarity score
//     among its aliases and return the top candidates.
//
// Ranking rules:
//   - One candidate per distinct answer id, keyed by its best alias score.
//   - Order: descending score, ties broken by catalog iteration order.
//   - An exact normalized-alias query scores 1.0 and lands first.
//   - No score cutoff: the result is empty only for an empty query set,
//     which cannot happen with a non-empty catalog.

package match

import (
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/okazari/soundguess/internal/catalog"
)

// DefaultLimit is the candidate count used by round resolution.
const DefaultLimit = 3

// Candidate is one ranked answer suggestion.
type Candidate struct {
	ID      catalog.AnswerID
	Aliases catalog.AliasSet
	Score   float64
}

// Matcher scores free text against every catalog alias.
type Matcher struct {
	cat     *catalog.Catalog
	entries []catalog.Entry
	metric  *metrics.SorensenDice
}

// New builds a Matcher over cat's aliases. The Sørensen–Dice bigram ratio
// plays the same role difflib's ratio does upstream: identical strings
// score 1.0 and partial overlaps degrade smoothly.
func New(cat *catalog.Catalog) *Matcher {
	sd := metrics.NewSorensenDice()
	sd.CaseSensitive = false
	return &Matcher{cat: cat, entries: cat.All(), metric: sd}
}

// BestMatches returns up to limit candidates for rawText, best first.
// rawText is normalized exactly like catalog aliases before scoring.
// A non-positive limit selects DefaultLimit.
func (m *Matcher) BestMatches(rawText string, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := catalog.Normalize(rawText)

	// Best score per answer id, keeping first-seen order for stable ties.
	best := make(map[catalog.AnswerID]float64, len(m.entries))
	var order []catalog.AnswerID
	for _, e := range m.entries {
		// The bigram metric scores identical strings shorter than a
		// bigram as 0, so equality short-circuits the metric. Both
		// sides are already normalized.
		var score float64
		if query == e.Alias {
			score = 1.0
		} else {
			score = strutil.Similarity(query, e.Alias, m.metric)
		}
		prev, seen := best[e.ID]
		if !seen {
			best[e.ID] = score
			order = append(order, e.ID)
			continue
		}
		if score > prev {
			best[e.ID] = score
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return best[order[i]] > best[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		aliases, err := m.cat.Lookup(id)
		if err != nil {
			// Ids came from the catalog itself; a miss here is a bug.
			panic(err)
		}
		out = append(out, Candidate{ID: id, Aliases: aliases, Score: best[id]})
	}
	return out
}

// Contains reports whether id appears among the candidates.
func Contains(candidates []Candidate, id catalog.AnswerID) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
