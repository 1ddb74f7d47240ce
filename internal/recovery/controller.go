package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"authflow/internal/configuration"
	apierrors "authflow/internal/errors"
	"authflow/internal/messaging"
	"authflow/internal/models"
	"authflow/internal/timer"
	"authflow/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API is the part of the identity service the recovery flow talks to.
type API interface {
	RequestPasswordReset(ctx context.Context, email string) (models.PasswordResetRequestResponse, error)
	VerifyOTP(ctx context.Context, email, otp string) (models.VerifyOTPResponse, error)
	ResetPassword(ctx context.Context, email, otp, newPassword string) (models.PasswordResetCompleteResponse, error)
}

// SessionWriter receives the session when a reset completion signs the user in.
type SessionWriter interface {
	Set(session models.Session)
}

// Controller drives one RecoverySession through Email, OTPVerification,
// PasswordReset and Success. It is safe for concurrent use; at most one
// submission is in flight at a time and at most one cooldown countdown is alive.
type Controller struct {
	api       API
	rules     *validation.Rules
	scheduler timer.Scheduler
	notifier  *messaging.FlowNotifier
	sessions  SessionWriter
	base      *zap.Logger
	cooldown  int
	interval  time.Duration

	mu         sync.Mutex
	logger     *zap.Logger
	session    models.RecoverySession
	countdown  timer.Handle
	generation uint64
}

type Option func(*Controller)

func WithScheduler(scheduler timer.Scheduler) Option {
	return func(c *Controller) { c.scheduler = scheduler }
}

func WithNotifier(notifier *messaging.FlowNotifier) Option {
	return func(c *Controller) { c.notifier = notifier }
}

func WithSessionWriter(sessions SessionWriter) Option {
	return func(c *Controller) { c.sessions = sessions }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.base = logger }
}

// WithCooldown sets the number of ticks a resend must wait and the tick period.
func WithCooldown(ticks int, interval time.Duration) Option {
	return func(c *Controller) {
		c.cooldown = ticks
		c.interval = interval
	}
}

func New(api API, rules *validation.Rules, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		rules:    rules,
		cooldown: configuration.DefaultResendCooldown,
		interval: time.Duration(configuration.DefaultTickIntervalMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = timer.NewTicker()
	}
	if c.base == nil {
		c.base = zap.L()
	}

	c.resetLocked()
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() models.RecoverySession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// SubmitEmail requests a one-time code for email and, on success, moves to
// OTPVerification and starts the resend cooldown.
func (c *Controller) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	if err := c.begin(models.RecoveryStateEmail, func() error {
		return c.rules.ValidateEmail(email)
	}); err != nil {
		return err
	}

	_, err := c.api.RequestPasswordReset(ctx, email)
	return c.finish(err, EmailAccepted{Email: email}, func() {
		c.restartCountdownLocked()
	})
}

// SubmitOTP verifies code. The session keeps its previous code on failure.
func (c *Controller) SubmitOTP(ctx context.Context, code string) error {
	var email string
	if err := c.begin(models.RecoveryStateOTPVerification, func() error {
		email = c.session.Email
		return c.rules.ValidateOTP(code)
	}); err != nil {
		return err
	}

	_, err := c.api.VerifyOTP(ctx, email, code)
	return c.finish(err, OTPAccepted{Code: code}, func() {
		c.stopCountdownLocked()
	})
}

// ResendOTP requests a new code once the cooldown has run out. While the cooldown
// is running it returns ErrCooldownActive and changes nothing.
func (c *Controller) ResendOTP(ctx context.Context) error {
	c.mu.Lock()
	if c.session.CurrentState != models.RecoveryStateOTPVerification {
		err := invalid(c.session, "resend")
		c.mu.Unlock()
		return err
	}
	if c.session.CooldownRemaining > 0 && !c.session.Busy {
		c.logger.Debug("Resend ignored during cooldown", zap.Int("cooldown_remaining", c.session.CooldownRemaining))
		c.mu.Unlock()
		return apierrors.ErrCooldownActive
	}
	next, err := Apply(c.session, SubmissionStarted{})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.session = next
	email := c.session.Email
	c.mu.Unlock()

	_, err = c.api.RequestPasswordReset(ctx, email)
	return c.finish(err, ResendAccepted{}, func() {
		c.restartCountdownLocked()
	})
}

// SubmitNewPassword runs the policy and confirmation checks, then completes the reset.
func (c *Controller) SubmitNewPassword(ctx context.Context, newPassword, confirmPassword string) error {
	var email, code string
	if err := c.begin(models.RecoveryStatePasswordReset, func() error {
		email = c.session.Email
		code = c.session.OTPCode
		return c.rules.ValidatePasswordReset(newPassword, confirmPassword)
	}); err != nil {
		return err
	}

	res, err := c.api.ResetPassword(ctx, email, code, newPassword)
	return c.finish(err, PasswordAccepted{NewPassword: newPassword, ConfirmPassword: confirmPassword}, func() {
		if c.sessions != nil && res.Token != "" && res.User != nil {
			c.sessions.Set(models.Session{User: *res.User, Token: res.Token})
			c.logger.Info("Session opened after password reset", zap.String("email", email))
		}
	})
}

// EditField tells the controller the user changed field; its error is cleared.
func (c *Controller) EditField(field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Apply(c.session, FieldEdited{Field: field})
	if err != nil {
		return err
	}
	c.session = next
	return nil
}

// Restart abandons the current attempt and starts a fresh session in the Email step.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Busy {
		return apierrors.ErrBusy
	}
	c.stopCountdownLocked()
	c.resetLocked()
	c.logger.Info("Recovery restarted")
	c.notifyLocked(models.FlowEventStateChanged, "")
	return nil
}

// Close stops the cooldown countdown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCountdownLocked()
}

func (c *Controller) resetLocked() {
	c.session = models.NewRecoverySession(uuid.NewString())
	c.logger = c.base.With(zap.String("session_id", c.session.ID))
}

// begin checks that the session is idle and in state, runs validate, and marks the
// submission as in flight. validate runs with the lock held.
func (c *Controller) begin(state models.RecoveryState, validate func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Busy {
		return apierrors.ErrBusy
	}
	if c.session.CurrentState != state {
		return invalid(c.session, "submit")
	}

	if validate != nil {
		if err := validate(); err != nil {
			next, applyErr := Apply(c.session, ValidationFailed{Fields: validation.Fields(err)})
			if applyErr != nil {
				return applyErr
			}
			c.session = next
			return err
		}
	}

	next, err := Apply(c.session, SubmissionStarted{})
	if err != nil {
		return err
	}
	c.session = next
	return nil
}

// finish applies the outcome of the in-flight submission. onSuccess runs with the
// lock held after the success event has been applied.
func (c *Controller) finish(callErr error, success Event, onSuccess func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if callErr != nil {
		message := apierrors.Message(callErr)
		c.session, _ = Apply(c.session, SubmissionFailed{Message: message})
		c.logger.Warn("Recovery step failed",
			zap.String("state", string(c.session.CurrentState)),
			zap.String("error", message))
		c.notifyLocked(models.FlowEventError, message)
		return callErr
	}

	next, err := Apply(c.session, success)
	if err != nil {
		// Only reachable if the session was replaced mid-flight.
		c.session, _ = Apply(c.session, SubmissionFailed{Message: err.Error()})
		c.logger.Error("Recovery step completed out of order", zap.Error(err))
		return err
	}
	c.session = next
	if onSuccess != nil {
		onSuccess()
	}

	c.logger.Info("Recovery step completed",
		zap.String("state", string(c.session.CurrentState)),
		zap.Int("cooldown_remaining", c.session.CooldownRemaining))
	c.notifyLocked(models.FlowEventStateChanged, "")
	return nil
}

// restartCountdownLocked cancels any live countdown before starting a new one.
// Ticks from a superseded countdown are recognised by their generation and dropped.
func (c *Controller) restartCountdownLocked() {
	c.stopCountdownLocked()

	next, err := Apply(c.session, CooldownSet{Remaining: c.cooldown})
	if err != nil {
		c.logger.Error("Failed to start cooldown", zap.Error(err))
		return
	}
	c.session = next

	gen := c.generation
	c.countdown = c.scheduler.StartCountdown(c.cooldown, c.interval,
		func(int) { c.tick(gen) },
		func() { c.expire(gen) },
	)
}

func (c *Controller) stopCountdownLocked() {
	if c.countdown != nil {
		c.countdown.Cancel()
		c.countdown = nil
	}
	c.generation++
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.session, _ = Apply(c.session, CooldownTicked{})
	c.notifyLocked(models.FlowEventCooldownTick, "")
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.countdown = nil
	c.logger.Debug("Resend cooldown finished")
}

func (c *Controller) notifyLocked(eventType models.FlowEventType, message string) {
	c.notifier.Notify(models.FlowEvent{
		SessionID:         c.session.ID,
		Type:              eventType,
		State:             c.session.CurrentState,
		CooldownRemaining: c.session.CooldownRemaining,
		Error:             message,
	})
}

// IsRejected reports whether err means the action was refused without any network call.
func IsRejected(err error) bool {
	var vErr *apierrors.ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, apierrors.ErrBusy) ||
		errors.Is(err, apierrors.ErrCooldownActive) ||
		errors.Is(err, apierrors.ErrInvalidTransition)
}
