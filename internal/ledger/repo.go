package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/ocrlabel/internal/models"
)

const labelColumns = `id, dataset, image_index, source, output, text, use_case, checksum, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLabel(r rowScanner) (models.Label, error) {
	var l models.Label
	var uc string
	err := r.Scan(&l.ID, &l.Dataset, &l.ImageIndex, &l.Source, &l.Output, &l.Text, &uc, &l.Checksum, &l.CreatedAt)
	l.UseCase = models.UseCase(uc)
	return l, err
}

// Record inserts a label and its FTS entry within a transaction and returns the new id.
func (db *DB) Record(ctx context.Context, l models.Label) (int64, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		INSERT INTO labels (dataset, image_index, source, output, text, use_case, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.Dataset, l.ImageIndex, l.Source, l.Output, l.Text, string(l.UseCase), l.Checksum, l.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert label: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: last insert id: %w", err)
	}

	// No-op when the FTS5 tag is absent.
	if err := ftsInsert(tx, id, l.Text, l.Source); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return id, nil
}

// List returns labels newest first together with the total count.
func (db *DB) List(ctx context.Context, limit, offset int) ([]models.Label, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	total, err := db.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+labelColumns+` FROM labels ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	out := []models.Label{}
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// Count returns the number of recorded labels.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM labels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}

// CountDataset returns the number of distinct images labeled in dataset.
func (db *DB) CountDataset(ctx context.Context, dataset string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(DISTINCT source) FROM labels WHERE dataset = ?`, dataset).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: count dataset: %w", err)
	}
	return n, nil
}

// LabeledSources returns every source filename recorded for dataset.
func (db *DB) LabeledSources(ctx context.Context, dataset string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT source FROM labels WHERE dataset = ? ORDER BY source`, dataset)
	if err != nil {
		return nil, fmt.Errorf("ledger: labeled sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
