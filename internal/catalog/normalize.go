// internal/catalog/normalize.go
//
// Alias normalization shared by the catalog's reverse index and the fuzzy
// matcher. Both sides must normalize identically or exact-alias queries
// stop resolving.

package catalog

import (
	"strings"

	"github.com/siongui/gojianfan"
	"golang.org/x/text/width"
)

// Normalize canonicalizes free text for alias comparison:
// full-width forms fold to half-width, traditional Chinese unifies to
// simplified, and the result is trimmed and lowercased.
func Normalize(s string) string {
	s = width.Fold.String(s)
	s = gojianfan.T2S(s)
	return strings.ToLower(strings.TrimSpace(s))
}
