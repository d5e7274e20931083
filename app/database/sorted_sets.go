package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Ordered-set primitives. A member carries one integer score per key;
// re-adding a member updates its score in place.

func (db *DB) SortedSetAdd(key string, score int64, member string) error {
	_, err := db.Exec(`
		INSERT INTO sorted_sets (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT (key, member) DO UPDATE SET score = excluded.score
	`, key, member, score)
	if err != nil {
		return fmt.Errorf("failed to add sorted set member: %w", err)
	}
	return nil
}

// SortedSetsAdd adds the same member with the same score to multiple
// keys in a single statement. The batch is best-effort, not a
// transaction: partial application is acceptable to the callers
// (index backdating re-runs are idempotent).
func (db *DB) SortedSetsAdd(keys []string, score int64, member string) error {
	if len(keys) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO sorted_sets (key, member, score) VALUES `)
	args := make([]interface{}, 0, len(keys)*3)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, key, member, score)
	}
	sb.WriteString(` ON CONFLICT (key, member) DO UPDATE SET score = excluded.score`)

	if _, err := db.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("failed to add member to sorted sets: %w", err)
	}
	return nil
}

func (db *DB) IsSortedSetMember(key, member string) (bool, error) {
	var exists int
	err := db.QueryRow(`
		SELECT COUNT(1) FROM sorted_sets WHERE key = ? AND member = ?
	`, key, member).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sorted set membership: %w", err)
	}
	return exists > 0, nil
}

func (db *DB) SortedSetScore(key, member string) (int64, bool, error) {
	var score int64
	err := db.QueryRow(`
		SELECT score FROM sorted_sets WHERE key = ? AND member = ?
	`, key, member).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get sorted set score: %w", err)
	}
	return score, true, nil
}

func (db *DB) SortedSetCard(key string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(1) FROM sorted_sets WHERE key = ?
	`, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sorted set members: %w", err)
	}
	return count, nil
}

// SortedSetsRemoveRangeByScore deletes members whose score falls in
// [min, max] from each of the given keys.
func (db *DB) SortedSetsRemoveRangeByScore(keys []string, min, max int64) error {
	if len(keys) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM sorted_sets WHERE key IN (%s) AND score >= ? AND score <= ?
	`, placeholders(len(keys)))
	args := append(toArgs(keys), min, max)
	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to remove sorted set range: %w", err)
	}
	return nil
}

func (db *DB) DeleteSortedSet(key string) error {
	if _, err := db.Exec(`DELETE FROM sorted_sets WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete sorted set: %w", err)
	}
	return nil
}
