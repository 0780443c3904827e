//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			path UNINDEXED,
			title,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string) error {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO items_fts (path, title, text) VALUES (?, ?, ?)`, path, title, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE path = ?`, path)
}

// textClause restricts the match to one FTS column and quotes the term as a
// phrase so user input cannot inject FTS operators.
func textClause(_, ftsColumn string, term string) (string, []any) {
	phrase := `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	return `i.path IN (SELECT path FROM items_fts WHERE items_fts MATCH ?)`,
		[]any{fmt.Sprintf("%s : %s", ftsColumn, phrase)}
}
