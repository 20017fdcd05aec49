package auth

import (
	"sync"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
)

// publicUsername identifies the anonymous principal used when no API keys
// are configured at all.
const publicUsername = "public_access"

// Store resolves bearer keys to principals. The key map is replaced
// wholesale on hot reload, so lookups never see a partial update.
type Store struct {
	mu           sync.RWMutex
	byKey        map[string]entity.Principal
	defaultLimit string
	logger       *zap.Logger
}

// NewStore indexes the configured users by key.
func NewStore(users []config.UserConfig, defaultLimit string, logger *zap.Logger) *Store {
	s := &Store{
		defaultLimit: defaultLimit,
		logger:       logger.With(zap.String("component", "auth-store")),
	}
	s.Reload(users)
	return s
}

// Reload rebuilds the key index from a fresh user list.
func (s *Store) Reload(users []config.UserConfig) {
	byKey := make(map[string]entity.Principal, len(users))
	for _, u := range users {
		if u.Key == "" {
			continue
		}
		limit := u.RateLimit
		if limit == "" {
			limit = s.defaultLimit
		}
		byKey[u.Key] = entity.Principal{
			Key:               u.Key,
			Username:          u.Username,
			DisplayName:       u.DisplayName,
			RateLimit:         limit,
			PersonaPromptFile: u.PersonaPromptFile,
		}
	}

	s.mu.Lock()
	s.byKey = byKey
	s.mu.Unlock()

	s.logger.Info("Principal map loaded", zap.Int("principals", len(byKey)))
}

// Lookup resolves a bearer key.
func (s *Store) Lookup(key string) (entity.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[key]
	return p, ok
}

// HasKeys reports whether any API keys are configured. With zero keys the
// gateway runs open and every caller becomes the public principal.
func (s *Store) HasKeys() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey) > 0
}

// Public returns the anonymous bootstrap principal.
func (s *Store) Public() entity.Principal {
	return entity.Principal{
		Username:    publicUsername,
		DisplayName: "Public Access",
		RateLimit:   s.defaultLimit,
		Anonymous:   true,
	}
}
