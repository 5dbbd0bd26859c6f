package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"renderly/internal/infra"
	"renderly/internal/sqlinline"
)

const ProviderGemini = "gemini"

// Store keeps provider API keys in the database so the worker does not need
// them in its environment. One row per provider.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// GeminiAPIKey returns the stored Gemini key, or "" when none is set.
func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.token(ctx, ProviderGemini)
}

// SetGeminiAPIKey stores the Gemini key, replacing any previous one.
func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.setToken(ctx, ProviderGemini, key, nil)
}

func (s *Store) token(ctx context.Context, provider string) (string, error) {
	var token string
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token)
	switch {
	case infra.IsNoRows(err):
		return "", nil
	case err != nil:
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) setToken(ctx context.Context, provider, token string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
