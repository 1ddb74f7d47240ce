// Package identity serves the identity service HTTP contract from memory. It backs
// the stub profile and the end-to-end tests of the client flows.
package identity

import (
	"errors"
	"strings"
	"sync"
	"time"

	"authflow/internal/activity"
	"authflow/internal/cache"
	"authflow/internal/models"
	"authflow/internal/notifier"
	"authflow/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUserExists = errors.New("user already exists")

type account struct {
	user models.User
	hash string
}

type Server struct {
	config models.StubConfiguration
	rules  *validation.Rules
	logger *zap.Logger
	mailer notifier.INotifier
	cache  cache.ICache
	audit  activity.IActivityLogger
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*account
	resets   map[string]*resetChallenge
}

type Option func(*Server)

// WithMailer delivers every issued reset code through mailer as well.
func WithMailer(mailer notifier.INotifier) Option {
	return func(s *Server) { s.mailer = mailer }
}

// WithCache keeps revoked tokens and rate limits in c instead of process memory.
func WithCache(c cache.ICache) Option {
	return func(s *Server) { s.cache = c }
}

// WithActivityLogger audits every authentication event and enables GET /activity.
func WithActivityLogger(audit activity.IActivityLogger) Option {
	return func(s *Server) { s.audit = audit }
}

// WithClock replaces time.Now, for code expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(config models.StubConfiguration, rules *validation.Rules, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.L()
	}
	s := &Server{
		config:   config,
		rules:    rules,
		logger:   logger,
		now:      time.Now,
		accounts: map[string]*account{},
		resets:   map[string]*resetChallenge{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache()
	}
	return s
}

// Routes serves the /auth subtree.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Post("/forgot-password", s.forgotPassword)
	r.Post("/verify-otp", s.verifyOTP)
	r.Post("/reset-password", s.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/logout", s.logout)
		r.Get("/me", s.me)

		if s.audit != nil {
			r.With(requireAdmin).Get("/activity", s.listActivity)
		}
	})

	return r
}

// SeedUser creates an account directly, bypassing the password policy.
func (s *Server) SeedUser(name, email, password string, role models.Role) (models.User, error) {
	hash, err := createHash(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	if err = s.addAccount(&account{user: user, hash: hash}); err != nil {
		return models.User{}, err
	}

	s.logger.Info("Seeded user", zap.String("email", email), zap.String("role", string(role)))
	return user, nil
}

func (s *Server) addAccount(a *account) error {
	key := normalizeEmail(a.user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		return ErrUserExists
	}
	s.accounts[key] = a
	return nil
}

func (s *Server) findAccount(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(email)]
	return a, ok
}

func (s *Server) revoke(c claims) {
	ttl := time.Duration(0)
	if c.ExpiresAt != nil {
		ttl = c.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return
	}
	if err := s.cache.RevokeToken(c.ID, ttl); err != nil {
		s.logger.Error("Failed to revoke token", zap.String("token_id", c.ID), zap.Error(err))
	}
}

func (s *Server) isRevoked(id string) bool {
	revoked, err := s.cache.IsTokenRevoked(id)
	if err != nil {
		s.logger.Error("Failed to check token revocation", zap.String("token_id", id), zap.Error(err))
		return true
	}
	return revoked
}

// PurgeExpired drops reset challenges past their validity and expired cache entries.
// It returns the number of entries removed.
func (s *Server) PurgeExpired() int {
	now := s.now()
	validity := time.Duration(s.config.OTPPeriod) * time.Second

	s.mu.Lock()
	removed := 0
	for key, challenge := range s.resets {
		if now.Sub(challenge.issuedAt) > validity {
			delete(s.resets, key)
			removed++
		}
	}
	s.mu.Unlock()

	if purger, ok := s.cache.(interface{ Purge() int }); ok {
		removed += purger.Purge()
	}
	return removed
}

func (s *Server) record(action models.ActivityAction, email, userID, message string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Send(models.Activity{
		Action:    action,
		Email:     normalizeEmail(email),
		UserID:    userID,
		Message:   message,
		Timestamp: s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to record activity", zap.String("action", string(action)), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
