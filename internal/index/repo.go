package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
)

const brainColumns = `i.path, i.parent_path, i.name, i.title, i.format, i.state, i.owner,
	i.preview, i.tags, i.mtime, i.pub_datetime`

// UpsertItem writes the brain of it together with its tag and ancestor
// membership rows and FTS entry in one transaction, so listings never see a
// brain that disagrees with its membership rows.
func (db *DB) UpsertItem(it *models.Item) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// A file can move to a new path (e.g. promoted to _index.md).
	if err := deleteWhere(tx, `SELECT path FROM items WHERE file = ? AND path <> ?`, it.File, it.Path); err != nil {
		return err
	}

	tagsJSON, _ := json.Marshal(it.Tags)
	_, err = tx.Exec(`
		INSERT INTO items (path, file, parent_path, name, title, format, state, owner,
			preview, body, tags, checksum, mtime, pub_datetime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			file         = excluded.file,
			parent_path  = excluded.parent_path,
			name         = excluded.name,
			title        = excluded.title,
			format       = excluded.format,
			state        = excluded.state,
			owner        = excluded.owner,
			preview      = excluded.preview,
			body         = excluded.body,
			tags         = excluded.tags,
			checksum     = excluded.checksum,
			mtime        = excluded.mtime,
			pub_datetime = excluded.pub_datetime
	`, it.Path, it.File, it.ParentPath, it.Name, it.Title, it.Format, it.State, it.Owner,
		it.Preview, it.Body, string(tagsJSON), it.Checksum,
		query.FormatTime(it.ModTime), query.FormatTime(it.PubDatetime))
	if err != nil {
		return fmt.Errorf("index: upsert item: %w", err)
	}

	if err := ftsUpsert(tx, it.Path, it.Title, it.Body); err != nil {
		return err
	}

	if err := replaceMembers(tx, "item_tags", "tag", it.Path, it.Tags); err != nil {
		return err
	}
	if err := replaceMembers(tx, "item_paths", "ancestor", it.Path, it.Ancestors); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceMembers(tx *sql.Tx, table, col, path string, values []string) error {
	if _, err := tx.Exec(`DELETE FROM `+table+` WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear %s: %w", table, err)
	}
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO ` + table + ` (path, ` + col + `) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare %s insert: %w", table, err)
	}
	defer stmt.Close()
	for _, v := range values {
		if _, err := stmt.Exec(path, v); err != nil {
			return fmt.Errorf("index: insert %s: %w", table, err)
		}
	}
	return nil
}

func deleteWhere(tx *sql.Tx, selectPaths string, args ...any) error {
	rows, err := tx.Query(selectPaths, args...)
	if err != nil {
		return fmt.Errorf("index: select stale: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		paths = append(paths, p)
	}
	rows.Close()
	for _, p := range paths {
		deleteInTx(tx, p)
	}
	return rows.Err()
}

func deleteInTx(tx *sql.Tx, path string) {
	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM item_tags WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM item_paths WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM items WHERE path = ?`, path)
}

// DeleteItem removes the item at path with its membership rows.
func (db *DB) DeleteItem(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	deleteInTx(tx, path)
	return tx.Commit()
}

// DeleteFile removes whichever item is backed by the storage file.
func (db *DB) DeleteFile(file string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteWhere(tx, `SELECT path FROM items WHERE file = ?`, file); err != nil {
		return err
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a storage file, or empty string
// if it is not indexed.
func (db *DB) GetChecksum(file string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM items WHERE file = ?`, file).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns file → checksum for every indexed item.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT file, checksum FROM items`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var f, cs string
		if err := rows.Scan(&f, &cs); err != nil {
			return nil, err
		}
		out[f] = cs
	}
	return out, rows.Err()
}

// TagNames returns every tag used by an item, sorted.
func (db *DB) TagNames(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT tag FROM item_tags ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("index: tag names: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetBrain returns the brain at path, or apperr.ErrNotFound.
func (db *DB) GetBrain(ctx context.Context, path string) (*models.Brain, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+brainColumns+` FROM items i WHERE i.path = ?`, path)
	b, err := scanBrain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get brain: %w", err)
	}
	return b, nil
}

// Search returns the brains matching q ordered by path.
func (db *DB) Search(ctx context.Context, q query.Node) ([]models.Brain, error) {
	where, args, err := compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+brainColumns+` FROM items i WHERE `+where+` ORDER BY i.path`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var out []models.Brain
	for rows.Next() {
		b, err := scanBrain(rows)
		if err != nil {
			return nil, fmt.Errorf("index: search scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	return out, nil
}

// Count returns the number of items matching q.
func (db *DB) Count(ctx context.Context, q query.Node) (int, error) {
	where, args, err := compile(q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM items i WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBrain(s scanner) (*models.Brain, error) {
	var (
		b             models.Brain
		tagsJSON      string
		mtime, pubDay string
	)
	if err := s.Scan(&b.Path, &b.ParentPath, &b.Name, &b.Title, &b.Format, &b.State, &b.Owner,
		&b.Preview, &tagsJSON, &mtime, &pubDay); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &b.Tags); err != nil || b.Tags == nil {
		b.Tags = []string{}
	}
	b.Ancestors = resource.Ancestors(b.Path)
	b.ModTime = query.ParseTime(mtime)
	b.PubDatetime = query.ParseTime(pubDay)
	return &b, nil
}
