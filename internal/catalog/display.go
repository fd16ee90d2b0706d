// internal/catalog/display.go
//
// Chat display formatting for alias sets.

package catalog

import "fmt"

// Format renders an alias set for a chat message:
//
//	1 name  → **name**
//	2 names → **name(alt)**
//	3 names → **name(alt1/alt2)**
//
// Any other length is a catalog data error and fails loudly instead of
// rendering blank.
func Format(set AliasSet) (string, error) {
	switch len(set) {
	case 1:
		return fmt.Sprintf("**%s**", set[0]), nil
	case 2:
		return fmt.Sprintf("**%s(%s)**", set[0], set[1]), nil
	case 3:
		return fmt.Sprintf("**%s(%s/%s)**", set[0], set[1], set[2]), nil
	default:
		return "", fmt.Errorf("%w: got %d", ErrBadAliasSet, len(set))
	}
}
