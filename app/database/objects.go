package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Hash-object and plain-set primitives. Keys are namespaced strings
// ("feed:<url>", "topic:<tid>", "feeds") so the one store serves feed
// configuration and forum index overrides alike.

func (db *DB) SetObjectField(key, field, value string) error {
	_, err := db.Exec(`
		INSERT INTO objects (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT (key, field) DO UPDATE SET value = excluded.value
	`, key, field, value)
	if err != nil {
		return fmt.Errorf("failed to set object field: %w", err)
	}
	return nil
}

func (db *DB) SetObject(key string, fields map[string]string) error {
	for field, value := range fields {
		if err := db.SetObjectField(key, field, value); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) GetObjectField(key, field string) (string, error) {
	var value string
	err := db.QueryRow(`
		SELECT value FROM objects WHERE key = ? AND field = ?
	`, key, field).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get object field: %w", err)
	}
	return value, nil
}

// GetObject returns all fields of an object, or nil if the object
// does not exist.
func (db *DB) GetObject(key string) (map[string]string, error) {
	rows, err := db.Query(`
		SELECT field, value FROM objects WHERE key = ?
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer rows.Close()

	var fields map[string]string
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating object rows: %w", err)
	}

	return fields, nil
}

func (db *DB) DeleteObjects(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM objects WHERE key IN (%s)`, placeholders(len(keys)))
	if _, err := db.Exec(query, toArgs(keys)...); err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	return nil
}

func (db *DB) SetAdd(key, member string) error {
	_, err := db.Exec(`
		INSERT INTO set_members (key, member) VALUES (?, ?)
		ON CONFLICT (key, member) DO NOTHING
	`, key, member)
	if err != nil {
		return fmt.Errorf("failed to add set member: %w", err)
	}
	return nil
}

func (db *DB) SetRemove(key string, members []string) error {
	if len(members) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM set_members WHERE key = ? AND member IN (%s)`, placeholders(len(members)))
	args := append([]interface{}{key}, toArgs(members)...)
	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to remove set members: %w", err)
	}
	return nil
}

// DeleteSet removes a set and all of its members.
func (db *DB) DeleteSet(key string) error {
	if _, err := db.Exec(`DELETE FROM set_members WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete set: %w", err)
	}
	return nil
}

func (db *DB) GetSetMembers(key string) ([]string, error) {
	rows, err := db.Query(`
		SELECT member FROM set_members WHERE key = ? ORDER BY member
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get set members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("failed to scan set member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating set members: %w", err)
	}

	return members, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
