package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// ProviderBackend is the integration_tokens row holding the generation
// backend API key.
const ProviderBackend = "generation_backend"

// Store reads and writes provider tokens kept in the database.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokensTable)
	return err
}

// BackendAPIKey returns the stored backend key, or "" when none is stored.
func (s *Store) BackendAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderBackend)
}

// SetBackendAPIKey stores key along with an optional label.
func (s *Store) SetBackendAPIKey(ctx context.Context, key, label string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("backend api key is required")
	}
	var props map[string]any
	if label = strings.TrimSpace(label); label != "" {
		props = map[string]any{"label": label}
	}
	return s.upsert(ctx, ProviderBackend, key, props)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
