package session

import (
	"context"
	"strings"

	apierrors "authflow/internal/errors"
	"authflow/internal/messaging"
	"authflow/internal/models"
	"authflow/internal/validation"

	"go.uber.org/zap"
)

// API is the part of the identity service used for sign-in and sign-out.
type API interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Register(ctx context.Context, email, password, name string) (models.Session, error)
	Logout(ctx context.Context, token string)
	Me(ctx context.Context, token string) (models.User, error)
}

type Controller struct {
	api      API
	rules    *validation.Rules
	store    *Store
	notifier *messaging.FlowNotifier
	logger   *zap.Logger
}

type Option func(*Controller)

func WithNotifier(notifier *messaging.FlowNotifier) Option {
	return func(c *Controller) { c.notifier = notifier }
}

func NewController(api API, rules *validation.Rules, store *Store, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.L()
	}
	c := &Controller{api: api, rules: rules, store: store, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login validates the form locally, then signs in. Field errors are returned as a
// *apierrors.ValidationError without contacting the service; service failures are
// returned unmodified.
func (c *Controller) Login(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.TrimSpace(email)
	if err := c.rules.ValidateLoginForm(email, password); err != nil {
		return models.Session{}, err
	}

	session, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.logger.Warn("Login failed", zap.String("email", email), zap.Error(err))
		return models.Session{}, err
	}

	c.open(session)
	return session, nil
}

// Register validates the form, including the password confirmation, then creates
// the account and signs in.
func (c *Controller) Register(ctx context.Context, form models.RegisterForm) (models.Session, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Name = strings.TrimSpace(form.Name)
	if err := c.rules.ValidateRegistration(form); err != nil {
		return models.Session{}, err
	}

	session, err := c.api.Register(ctx, form.Email, form.Password, form.Name)
	if err != nil {
		c.logger.Warn("Registration failed", zap.String("email", form.Email), zap.Error(err))
		return models.Session{}, err
	}

	c.open(session)
	return session, nil
}

// Logout tells the service and clears the store whatever the outcome.
func (c *Controller) Logout(ctx context.Context) {
	current := c.store.Current()
	if current.Token == "" {
		return
	}

	c.api.Logout(ctx, current.Token)
	c.store.Clear()

	c.logger.Info("Session closed", zap.String("email", current.User.Email))
	c.notifier.Notify(models.FlowEvent{Type: models.FlowEventSessionClosed, UserEmail: current.User.Email})
}

// Restore checks the stored token against the service and refreshes the stored user.
// The store is cleared when the token is no longer accepted.
func (c *Controller) Restore(ctx context.Context) (models.User, error) {
	token := c.store.Token()
	if token == "" {
		return models.User{}, apierrors.ErrNotAuthenticated
	}

	user, err := c.api.Me(ctx, token)
	if err != nil {
		c.logger.Info("Stored session rejected", zap.Error(err))
		c.store.Clear()
		return models.User{}, err
	}

	c.store.Set(models.Session{User: user, Token: token})
	return user, nil
}

func (c *Controller) open(session models.Session) {
	c.store.Set(session)
	c.logger.Info("Session opened",
		zap.String("email", session.User.Email),
		zap.String("role", string(session.User.Role)))
	c.notifier.Notify(models.FlowEvent{Type: models.FlowEventSessionOpened, UserEmail: session.User.Email})
}
