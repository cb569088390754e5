//go:build !sqlite_fts5

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/ocrlabel/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the labels table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ int64, _, _ string) error {
	return nil
}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Label, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+labelColumns+`
		FROM labels
		WHERE text LIKE ? OR source LIKE ?
		ORDER BY id DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: search: %w", err)
	}
	defer rows.Close()

	out := []models.Label{}
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
