package index

import (
	"context"
	"fmt"

	"github.com/starford/sitefeed/internal/orderedset"
)

// Load returns the ordered identifiers stored for key.
func (db *DB) Load(ctx context.Context, key orderedset.Key) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM ordered_sets WHERE container = ? AND name = ? ORDER BY position`,
		key.Container, key.Name)
	if err != nil {
		return nil, fmt.Errorf("index: load order: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save replaces the sequence stored for key in one transaction.
func (db *DB) Save(ctx context.Context, key orderedset.Key, ids []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ordered_sets WHERE container = ? AND name = ?`, key.Container, key.Name); err != nil {
		return fmt.Errorf("index: clear order: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ordered_sets (container, name, position, id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare order insert: %w", err)
	}
	defer stmt.Close()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, key.Container, key.Name, i, id); err != nil {
			return fmt.Errorf("index: insert order: %w", err)
		}
	}
	return tx.Commit()
}
