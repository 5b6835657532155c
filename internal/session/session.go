package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/services"
)

// TokenKey is the only key the session writes to client storage.
const TokenKey = "access_token"

var ErrEmptyToken = errors.New("session: empty token")

// Store holds the authenticated session. Token and user change together
// under one lock, so readers never see a token from one login with the
// user of another.
type Store struct {
	mu      sync.RWMutex
	token   string
	user    *models.User
	storage services.Storage
	log     *zap.Logger

	hookMu   sync.Mutex
	onLogout []func()
}

func New(storage services.Storage, log *zap.Logger) *Store {
	if storage == nil {
		storage = services.NewMemoryStorage()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{storage: storage, log: log.Named("session")}
}

// Restore loads a persisted token. The user stays unknown until the next
// login; Authenticated reports true as soon as a token is present.
func (s *Store) Restore(ctx context.Context) bool {
	b, ok := s.storage.Get(ctx, TokenKey)
	if !ok || len(b) == 0 {
		return false
	}
	s.mu.Lock()
	s.token = string(b)
	s.user = nil
	s.mu.Unlock()
	s.log.Debug("restored token from storage", zap.String("backend", s.storage.Backend()))
	return true
}

// Login replaces the session and persists the token. The in-memory session
// is always replaced; the error only reports a persistence failure.
func (s *Store) Login(ctx context.Context, token string, user models.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	u := user
	s.mu.Lock()
	s.token = token
	s.user = &u
	s.mu.Unlock()

	if err := s.storage.Set(ctx, TokenKey, []byte(token), 0); err != nil {
		s.log.Warn("persist token failed", zap.Error(err))
		return fmt.Errorf("persist token: %w", err)
	}
	s.log.Info("logged in", zap.Int("user_id", u.ID), zap.String("email", u.Email))
	return nil
}

// Logout clears memory and storage, then runs the logout hooks. Calling it
// on an empty session is harmless.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	err := s.storage.Delete(ctx, TokenKey)
	if err != nil {
		s.log.Warn("remove token failed", zap.Error(err))
		err = fmt.Errorf("remove token: %w", err)
	}
	if had {
		s.log.Info("logged out")
	}

	s.hookMu.Lock()
	hooks := append([]func(){}, s.onLogout...)
	s.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return err
}

// OnLogout registers fn to run after every Logout, typically to send the
// presentation back to its login entry point.
func (s *Store) OnLogout(fn func()) {
	s.hookMu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.hookMu.Unlock()
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := models.Session{Token: s.token}
	if s.user != nil {
		u := *s.user
		out.User = &u
	}
	return out
}

func (s *Store) Authenticated() bool {
	return s.Token() != ""
}

// StorageBackend names the storage the token is persisted in.
func (s *Store) StorageBackend() string {
	return s.storage.Backend()
}
