package recovery

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	apierrors "authflow/internal/errors"
	"authflow/internal/messaging"
	"authflow/internal/models"
	"authflow/internal/timer"
	"authflow/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu sync.Mutex

	resetRequests []string
	verified      []string
	completed     []string

	requestErr error
	validOTP   string
	resetErr   error
	resetRes   models.PasswordResetCompleteResponse

	// gate, when set, blocks RequestPasswordReset until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) RequestPasswordReset(_ context.Context, email string) (models.PasswordResetRequestResponse, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetRequests = append(f.resetRequests, email)
	if f.requestErr != nil {
		return models.PasswordResetRequestResponse{}, f.requestErr
	}
	return models.PasswordResetRequestResponse{Message: "OTP sent"}, nil
}

func (f *fakeAPI) VerifyOTP(_ context.Context, _ string, otp string) (models.VerifyOTPResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, otp)
	if otp != f.validOTP {
		return models.VerifyOTPResponse{}, apierrors.NewTransportError(http.StatusBadRequest, "Invalid OTP")
	}
	valid := true
	return models.VerifyOTPResponse{Valid: &valid}, nil
}

func (f *fakeAPI) ResetPassword(
	_ context.Context,
	email string,
	otp string,
	newPassword string,
) (models.PasswordResetCompleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, email+"|"+otp+"|"+newPassword)
	if f.resetErr != nil {
		return models.PasswordResetCompleteResponse{}, f.resetErr
	}
	res := f.resetRes
	if res.Message == "" {
		res.Message = "Password reset successful"
	}
	return res, nil
}

func (f *fakeAPI) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resetRequests)
}

type recordingStore struct {
	sessions []models.Session
}

func (s *recordingStore) Set(session models.Session) {
	s.sessions = append(s.sessions, session)
}

func newTestController(api *fakeAPI, opts ...Option) (*Controller, *timer.Manual) {
	clock := timer.NewManual()
	rules := validation.New(models.PasswordPolicyConfiguration{MinLength: 8})
	opts = append([]Option{
		WithScheduler(clock),
		WithLogger(zap.NewNop()),
		WithCooldown(60, time.Second),
	}, opts...)
	return New(api, rules, opts...), clock
}

func atOTPStep(t *testing.T, api *fakeAPI, opts ...Option) (*Controller, *timer.Manual) {
	t.Helper()
	c, clock := newTestController(api, opts...)
	require.NoError(t, c.SubmitEmail(context.Background(), "alice@example.com"))
	return c, clock
}

func TestSubmitEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("should move to otp verification and start the cooldown", func(t *testing.T) {
		api := &fakeAPI{}
		c, clock := newTestController(api)

		require.NoError(t, c.SubmitEmail(ctx, "  alice@example.com "))

		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStateOTPVerification, s.CurrentState)
		assert.Equal(t, "alice@example.com", s.Email)
		assert.Equal(t, 60, s.CooldownRemaining)
		assert.False(t, s.Busy)
		assert.Equal(t, []string{"alice@example.com"}, api.resetRequests)
		assert.Equal(t, 1, clock.Active())
	})

	t.Run("should not call the service for an invalid email", func(t *testing.T) {
		api := &fakeAPI{}
		c, _ := newTestController(api)

		err := c.SubmitEmail(ctx, "not-an-email")
		require.Error(t, err)
		assert.True(t, IsRejected(err))

		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStateEmail, s.CurrentState)
		assert.Equal(t, validation.MsgEmailInvalid, s.FieldErrors[models.FieldEmail])
		assert.Zero(t, api.requests())
	})

	t.Run("should keep the step and record the service error", func(t *testing.T) {
		api := &fakeAPI{requestErr: apierrors.NewTransportError(http.StatusNotFound, "User not found")}
		c, clock := newTestController(api)

		err := c.SubmitEmail(ctx, "ghost@example.com")
		require.Error(t, err)
		assert.False(t, IsRejected(err))

		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStateEmail, s.CurrentState)
		assert.Equal(t, "User not found", s.LastError)
		assert.Empty(t, s.Email)
		assert.False(t, s.Busy)
		assert.Zero(t, clock.Active())
	})

	t.Run("should reject a second submission while the first is in flight", func(t *testing.T) {
		api := &fakeAPI{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
		c, _ := newTestController(api)

		done := make(chan error, 1)
		go func() { done <- c.SubmitEmail(ctx, "alice@example.com") }()
		<-api.entered

		assert.True(t, c.Snapshot().Busy)
		assert.ErrorIs(t, c.SubmitEmail(ctx, "alice@example.com"), apierrors.ErrBusy)
		assert.ErrorIs(t, c.Restart(), apierrors.ErrBusy)

		close(api.gate)
		require.NoError(t, <-done)
		assert.Equal(t, 1, api.requests())
	})
}

func TestSubmitOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep the step and the previous code when the service rejects the code", func(t *testing.T) {
		api := &fakeAPI{validOTP: "654321"}
		c, _ := atOTPStep(t, api)

		err := c.SubmitOTP(ctx, "000000")
		require.Error(t, err)

		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStateOTPVerification, s.CurrentState)
		assert.Equal(t, "Invalid OTP", s.LastError)
		assert.Empty(t, s.OTPCode)
		assert.False(t, s.Busy)
	})

	t.Run("should validate the code before calling the service", func(t *testing.T) {
		api := &fakeAPI{validOTP: "654321"}
		c, _ := atOTPStep(t, api)

		require.Error(t, c.SubmitOTP(ctx, ""))
		assert.Equal(t, validation.MsgOTPRequired, c.Snapshot().FieldErrors[models.FieldOTP])

		require.Error(t, c.SubmitOTP(ctx, "12345"))
		assert.Equal(t, validation.MsgOTPFormat, c.Snapshot().FieldErrors[models.FieldOTP])
		assert.Empty(t, api.verified)

		require.NoError(t, c.EditField(models.FieldOTP))
		assert.Empty(t, c.Snapshot().FieldErrors)
	})

	t.Run("should advance and stop the cooldown on success", func(t *testing.T) {
		api := &fakeAPI{validOTP: "654321"}
		c, clock := atOTPStep(t, api)

		require.NoError(t, c.SubmitOTP(ctx, "654321"))

		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStatePasswordReset, s.CurrentState)
		assert.Equal(t, "654321", s.OTPCode)
		assert.Zero(t, s.CooldownRemaining)
		assert.Zero(t, clock.Active())
	})

	t.Run("should refuse an otp in the email step", func(t *testing.T) {
		c, _ := newTestController(&fakeAPI{})
		assert.ErrorIs(t, c.SubmitOTP(ctx, "123456"), apierrors.ErrInvalidTransition)
	})
}

func TestResendOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse while the cooldown is running and allow once it ends", func(t *testing.T) {
		api := &fakeAPI{}
		c, clock := atOTPStep(t, api)
		c.session.LastError = "previous"

		for _, step := range []int{0, 1, 58} {
			clock.Advance(step)
			require.ErrorIs(t, c.ResendOTP(ctx), apierrors.ErrCooldownActive)
		}
		assert.Equal(t, 1, c.Snapshot().CooldownRemaining)
		assert.Equal(t, "previous", c.Snapshot().LastError)
		assert.Equal(t, 1, api.requests())

		clock.Tick()
		assert.Zero(t, c.Snapshot().CooldownRemaining)
		assert.True(t, c.Snapshot().CanResend())

		require.NoError(t, c.ResendOTP(ctx))
		assert.Equal(t, 2, api.requests())
		assert.Equal(t, 60, c.Snapshot().CooldownRemaining)
		assert.ErrorIs(t, c.ResendOTP(ctx), apierrors.ErrCooldownActive)
	})

	t.Run("should keep a single countdown that loses one per tick", func(t *testing.T) {
		api := &fakeAPI{}
		c, clock := atOTPStep(t, api)

		clock.Advance(60)
		require.NoError(t, c.ResendOTP(ctx))
		assert.Equal(t, 1, clock.Active())

		for want := 59; want >= 55; want-- {
			clock.Tick()
			assert.Equal(t, want, c.Snapshot().CooldownRemaining)
		}
	})

	t.Run("should leave the cooldown at zero when the resend fails", func(t *testing.T) {
		api := &fakeAPI{}
		c, clock := atOTPStep(t, api)
		clock.Advance(60)

		api.requestErr = apierrors.NewTransportError(0, "Network error")
		require.Error(t, c.ResendOTP(ctx))

		s := c.Snapshot()
		assert.Equal(t, "Network error", s.LastError)
		assert.Zero(t, s.CooldownRemaining)
		assert.True(t, s.CanResend())
	})

	t.Run("should refuse a resend outside otp verification", func(t *testing.T) {
		c, _ := newTestController(&fakeAPI{})
		assert.ErrorIs(t, c.ResendOTP(ctx), apierrors.ErrInvalidTransition)
	})
}

func TestSubmitNewPassword(t *testing.T) {
	ctx := context.Background()

	atResetStep := func(t *testing.T, api *fakeAPI, opts ...Option) *Controller {
		t.Helper()
		api.validOTP = "654321"
		c, _ := atOTPStep(t, api, opts...)
		require.NoError(t, c.SubmitOTP(ctx, "654321"))
		return c
	}

	t.Run("should report policy and confirmation errors together", func(t *testing.T) {
		api := &fakeAPI{}
		c := atResetStep(t, api)

		err := c.SubmitNewPassword(ctx, "short", "different")
		require.Error(t, err)
		assert.True(t, apierrors.IsPolicyViolation(err))

		fields := c.Snapshot().FieldErrors
		assert.Contains(t, fields, models.FieldNewPassword)
		assert.Equal(t, validation.MsgPasswordMismatch, fields[models.FieldConfirmPassword])
		assert.Empty(t, api.completed)
	})

	t.Run("should complete with the verified code", func(t *testing.T) {
		api := &fakeAPI{}
		c := atResetStep(t, api)

		require.NoError(t, c.SubmitNewPassword(ctx, "Secure123!", "Secure123!"))
		assert.Equal(t, models.RecoveryStateSuccess, c.Snapshot().CurrentState)
		assert.Equal(t, []string{"alice@example.com|654321|Secure123!"}, api.completed)
	})

	t.Run("should open a session when the service signs the user in", func(t *testing.T) {
		user := models.User{ID: "u-1", Email: "alice@example.com", Role: models.RoleUser}
		api := &fakeAPI{resetRes: models.PasswordResetCompleteResponse{User: &user, Token: "jwt"}}
		store := &recordingStore{}
		c := atResetStep(t, api, WithSessionWriter(store))

		require.NoError(t, c.SubmitNewPassword(ctx, "Secure123!", "Secure123!"))
		require.Len(t, store.sessions, 1)
		assert.Equal(t, "jwt", store.sessions[0].Token)
	})

	t.Run("should stay in password reset when the service fails", func(t *testing.T) {
		api := &fakeAPI{resetErr: apierrors.NewTransportError(http.StatusBadRequest, "OTP expired")}
		c := atResetStep(t, api)

		require.Error(t, c.SubmitNewPassword(ctx, "Secure123!", "Secure123!"))
		s := c.Snapshot()
		assert.Equal(t, models.RecoveryStatePasswordReset, s.CurrentState)
		assert.Equal(t, "OTP expired", s.LastError)
	})
}

func TestRecoveryScenario(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{validOTP: "654321"}
	c, clock := newTestController(api)
	defer c.Close()

	require.NoError(t, c.SubmitEmail(ctx, "a@b.co"))
	assert.Equal(t, 60, c.Snapshot().CooldownRemaining)

	clock.Advance(10)
	assert.Equal(t, 50, c.Snapshot().CooldownRemaining)

	require.Error(t, c.SubmitOTP(ctx, "000000"))
	assert.Equal(t, "Invalid OTP", c.Snapshot().LastError)

	require.NoError(t, c.SubmitOTP(ctx, "654321"))
	assert.Empty(t, c.Snapshot().LastError)

	require.NoError(t, c.SubmitNewPassword(ctx, "Secure123!", "Secure123!"))
	assert.Equal(t, models.RecoveryStateSuccess, c.Snapshot().CurrentState)

	assert.ErrorIs(t, c.SubmitEmail(ctx, "a@b.co"), apierrors.ErrInvalidTransition)

	require.NoError(t, c.Restart())
	s := c.Snapshot()
	assert.Equal(t, models.RecoveryStateEmail, s.CurrentState)
	assert.Empty(t, s.Email)
}

func TestControllerWithTicker(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, validation.New(models.PasswordPolicyConfiguration{MinLength: 8}),
		WithLogger(zap.NewNop()),
		WithCooldown(3, 5*time.Millisecond),
	)
	defer c.Close()

	require.NoError(t, c.SubmitEmail(context.Background(), "alice@example.com"))
	assert.Eventually(t, func() bool {
		return c.Snapshot().CanResend()
	}, time.Second, 5*time.Millisecond)
}

func TestFlowEventOrder(t *testing.T) {
	ch := messaging.NewMemoryChannel()
	pub := messaging.NewMemoryPublisher(ch, "recovery_events")
	defer pub.Close()
	events := messaging.NewMemorySubscriber(context.Background(), ch, "recovery_events").Subscribe()

	notifier := messaging.NewFlowNotifier(pub, zap.NewNop())
	defer notifier.Close()

	c, clock := atOTPStep(t, &fakeAPI{}, WithNotifier(notifier))
	clock.Advance(60)
	assert.Equal(t, 0, c.Snapshot().CooldownRemaining)

	var ticks []int
	var lastSeq uint64
	deadline := time.After(2 * time.Second)
	for len(ticks) < 60 {
		select {
		case msg := <-events:
			msg.Ack()
			event, err := messaging.DecodeFlowEvent(msg)
			require.NoError(t, err)

			require.Greater(t, event.Seq, lastSeq)
			lastSeq = event.Seq
			if event.Type == models.FlowEventCooldownTick {
				ticks = append(ticks, event.CooldownRemaining)
			}
		case <-deadline:
			t.Fatalf("timed out after %d cooldown ticks", len(ticks))
		}
	}

	for i, remaining := range ticks {
		assert.Equal(t, 59-i, remaining, "tick %d", i)
	}
}
