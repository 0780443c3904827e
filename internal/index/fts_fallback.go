//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; text predicates use LIKE on the items table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Title and body are already stored in the items table.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// textClause matches a case-insensitive substring of column.
func textClause(column, _ string, term string) (string, []any) {
	return column + ` LIKE ? ESCAPE '\'`, []any{"%" + likeEscaper.Replace(term) + "%"}
}
