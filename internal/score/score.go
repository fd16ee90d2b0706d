// internal/score/score.go
//
// Win counters and leaderboards.
//
// The Store interface is the engine's optional scoring collaborator;
// SQLStore persists counters in sqlite keyed by (channel, user, variant).
// Each variant tracks its own leaderboard and channels never share
// rankings. Increments are atomic upserts.

package score

import (
	"context"
	"database/sql"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID   string
	UserName string
	Wins     int
}

// Store is the scoring collaborator. Implementations may be absent;
// the engine treats a nil Store as "scoring disabled".
type Store interface {
	// Increment adds one win for (channelID, userID, variant) and records
	// the user's latest display name.
	Increment(ctx context.Context, channelID, userID, userName, variant string) error

	// TopN returns up to limit entries for a channel's variant
	// leaderboard, descending by wins, ties broken by user id (stable).
	TopN(ctx context.Context, channelID, variant string, limit int) ([]Entry, error)
}

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an opened (and migrated) database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Increment(ctx context.Context, channelID, userID, userName, variant string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO scores (channel_id, user_id, variant, user_name, wins)
        VALUES (?,?,?,?,1)
        ON CONFLICT(channel_id, user_id, variant)
        DO UPDATE SET wins = wins + 1, user_name = excluded.user_name`,
		channelID, userID, variant, userName,
	)
	return err
}

func (s *SQLStore) TopN(ctx context.Context, channelID, variant string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_id, user_name, wins
        FROM scores
        WHERE channel_id=? AND variant=?
        ORDER BY wins DESC, user_id ASC
        LIMIT ?`, channelID, variant, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.UserName, &e.Wins); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
