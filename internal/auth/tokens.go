package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/store"
)

// TokenKey is the slot the access token is persisted under.
const TokenKey = "google_auth_token"

// TokenStore persists the single access token of the signed-in user.
// Unreadable or malformed data is reported as "no token" and the slot is
// cleared, so a corrupted entry never breaks the caller.
type TokenStore struct {
	slots  store.Store
	logger zerolog.Logger
}

// NewTokenStore creates a TokenStore over the given slot store.
func NewTokenStore(slots store.Store, logger zerolog.Logger) *TokenStore {
	return &TokenStore{
		slots:  slots,
		logger: logging.Component(logger, "token-store"),
	}
}

// Get returns the persisted token, or nil if there is none.
func (s *TokenStore) Get() *oauth2.Token {
	data, err := s.slots.Get(TokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("token slot unreadable, treating as signed out")
		return nil
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil || token.AccessToken == "" {
		s.logger.Warn().Err(err).Msg("discarding malformed token")
		if err := s.slots.Delete(TokenKey); err != nil {
			s.logger.Error().Err(err).Msg("failed to clear malformed token")
		}
		return nil
	}
	return &token
}

// Set persists token, replacing any previous one.
func (s *TokenStore) Set(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("refusing to store a token without an access token")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.slots.Put(TokenKey, data); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an empty store is not an error.
func (s *TokenStore) Clear() error {
	if err := s.slots.Delete(TokenKey); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
