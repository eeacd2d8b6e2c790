package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// PostgresStore persists records in the generated_images table.
type PostgresStore struct {
	sql infra.SQLExecutor
}

func NewPostgresStore(sql infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{sql: sql}
}

// EnsureSchema creates the table and its index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateGeneratedImagesTable, sqlinline.QCreateGeneratedImagesIndex} {
		if _, err := s.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("gallery: ensure schema: %w", err)
		}
	}
	return nil
}

type insertRow struct {
	ID            string          `json:"id"`
	JobID         string          `json:"job_id"`
	ImageURL      string          `json:"image_url"`
	LocalCacheRef string          `json:"local_cache_ref"`
	Prompt        string          `json:"prompt"`
	Parameters    json.RawMessage `json:"parameters"`
	Status        string          `json:"status"`
	Favorite      bool            `json:"favorite"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Append inserts the batch in a single statement so a failure leaves no
// partial batch behind.
func (s *PostgresStore) Append(ctx context.Context, records []domain.GeneratedImageRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]insertRow, 0, len(records))
	for _, r := range records {
		params, err := json.Marshal(r.Parameters)
		if err != nil {
			return fmt.Errorf("gallery: encode parameters: %w", err)
		}
		rows = append(rows, insertRow{
			ID:            r.ID,
			JobID:         r.JobID,
			ImageURL:      r.ImageURL,
			LocalCacheRef: r.LocalCacheRef,
			Prompt:        r.Prompt,
			Parameters:    params,
			Status:        string(r.Status),
			Favorite:      r.Favorite,
			CreatedAt:     r.CreatedAt,
		})
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("gallery: encode batch: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QInsertGeneratedImages, payload); err != nil {
		return fmt.Errorf("gallery: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, favoritesOnly bool, limit int) ([]domain.GeneratedImageRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListGeneratedImages, favoritesOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("gallery: list: %w", err)
	}
	defer rows.Close()
	var out []domain.GeneratedImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gallery: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetFavorite(ctx context.Context, id string, favorite bool) (domain.GeneratedImageRecord, error) {
	rec, err := scanRecord(s.sql.QueryRow(ctx, sqlinline.QSetGeneratedImageFavorite, id, favorite))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.GeneratedImageRecord{}, domain.ErrNotFound
		}
		return domain.GeneratedImageRecord{}, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (domain.GeneratedImageRecord, error) {
	var (
		rec    domain.GeneratedImageRecord
		params []byte
		status string
	)
	if err := row.Scan(&rec.ID, &rec.JobID, &rec.ImageURL, &rec.LocalCacheRef, &rec.Prompt, &params, &status, &rec.Favorite, &rec.CreatedAt); err != nil {
		return rec, err
	}
	rec.Status = domain.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Parameters); err != nil {
			return rec, fmt.Errorf("gallery: decode parameters: %w", err)
		}
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
