// internal/score/render.go
//
// Plaintext rendering of leaderboard entries. The orchestrator wraps the
// table in a monospace block and appends the caller's own footer.

package score

import (
	"fmt"
	"strings"
)

// RenderRanking formats entries as fixed-width rank/wins/name rows,
// in the order given (which TopN already made stable).
func RenderRanking(entries []Entry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%4s  %8s  %s\n", "Rank", "Wins", "Name"))
	for i, e := range entries {
		name := e.UserName
		if name == "" {
			name = e.UserID
		}
		b.WriteString(fmt.Sprintf("%4d  %8d  %s\n", i+1, e.Wins, name))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RankOf finds userID's position in entries. Rank is 1-based.
func RankOf(entries []Entry, userID string) (rank, wins int, ok bool) {
	for i, e := range entries {
		if e.UserID == userID {
			return i + 1, e.Wins, true
		}
	}
	return 0, 0, false
}

// CallerFooter renders the "your rank" lines appended below the table.
func CallerFooter(entries []Entry, userID string) string {
	if rank, wins, ok := RankOf(entries, userID); ok {
		return fmt.Sprintf("\n\nYour rank: %d\nWins: %d", rank, wins)
	}
	return "\n\nYour rank: none yet"
}
