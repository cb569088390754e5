//go:build sqlite_fts5

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/ocrlabel/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS labels_fts USING fts5(
			label_id UNINDEXED,
			text,
			source,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, id int64, text, source string) error {
	_, err := tx.Exec(`INSERT INTO labels_fts (label_id, text, source) VALUES (?, ?, ?)`, id, text, source)
	if err != nil {
		return fmt.Errorf("ledger: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 match over label text and source filenames.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Label, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT l.id, l.dataset, l.image_index, l.source, l.output, l.text, l.use_case, l.checksum, l.created_at
		FROM labels_fts f
		JOIN labels l ON l.id = f.label_id
		WHERE labels_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
