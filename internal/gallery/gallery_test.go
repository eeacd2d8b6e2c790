package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/sqlinline"
)

func record(id string, at time.Time) domain.GeneratedImageRecord {
	return domain.GeneratedImageRecord{
		ID:         id,
		JobID:      "job-1",
		ImageURL:   "http://backend/assets/" + id,
		Prompt:     "cat",
		Parameters: domain.GenerationParameters{Prompt: "cat", Steps: 20},
		Status:     domain.JobStatusSucceeded,
		CreatedAt:  at,
	}
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, []domain.GeneratedImageRecord{record("a", base), record("b", base.Add(time.Minute))}))
	require.NoError(t, store.Append(ctx, []domain.GeneratedImageRecord{record("c", base.Add(2 * time.Minute))}))

	got, err := store.List(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})

	limited, err := store.List(ctx, false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreFavorites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, []domain.GeneratedImageRecord{record("a", time.Now()), record("b", time.Now())}))

	rec, err := store.SetFavorite(ctx, "b", true)
	require.NoError(t, err)
	assert.True(t, rec.Favorite)

	favs, err := store.List(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "b", favs[0].ID)

	_, err = store.SetFavorite(ctx, "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreAppendKeepsExistingRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, []domain.GeneratedImageRecord{record("a", time.Now())}))
	_, err := store.SetFavorite(ctx, "a", true)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, []domain.GeneratedImageRecord{record("a", time.Now())}))
	got, err := store.List(ctx, true, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type execCall struct {
	query string
	args  []any
}

type stubSQL struct {
	execs  []execCall
	err    error
	rowErr error
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return pgconn.CommandTag{}, s.err
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return errRow{err: s.rowErr}
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

func TestPostgresAppendSendsOneBatchStatement(t *testing.T) {
	sql := &stubSQL{}
	store := NewPostgresStore(sql)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(context.Background(), []domain.GeneratedImageRecord{record("11111111-1111-1111-1111-111111111111", at), record("22222222-2222-2222-2222-222222222222", at)}))
	require.Len(t, sql.execs, 1)
	assert.Equal(t, sqlinline.QInsertGeneratedImages, sql.execs[0].query)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(sql.execs[0].args[0].([]byte), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "succeeded", rows[0]["status"])
	params, ok := rows[0]["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cat", params["prompt"])
}

func TestPostgresAppendEmptyBatchIsNoop(t *testing.T) {
	sql := &stubSQL{}
	require.NoError(t, NewPostgresStore(sql).Append(context.Background(), nil))
	assert.Empty(t, sql.execs)
}

func TestPostgresAppendWrapsErrors(t *testing.T) {
	sql := &stubSQL{err: errors.New("deadlock")}
	err := NewPostgresStore(sql).Append(context.Background(), []domain.GeneratedImageRecord{record("a", time.Now())})
	assert.ErrorContains(t, err, "deadlock")
}

func TestPostgresSetFavoriteMissing(t *testing.T) {
	sql := &stubSQL{rowErr: pgx.ErrNoRows}
	_, err := NewPostgresStore(sql).SetFavorite(context.Background(), "x", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresEnsureSchema(t *testing.T) {
	sql := &stubSQL{}
	require.NoError(t, NewPostgresStore(sql).EnsureSchema(context.Background()))
	require.Len(t, sql.execs, 2)
	assert.Equal(t, sqlinline.QCreateGeneratedImagesTable, sql.execs[0].query)
}
