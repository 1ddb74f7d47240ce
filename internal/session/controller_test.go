package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	apierrors "authflow/internal/errors"
	"authflow/internal/messaging"
	"authflow/internal/models"
	"authflow/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	loginCalls    int
	registerCalls int
	logoutTokens  []string
	meTokens      []string

	session models.Session
	user    models.User
	err     error
	meErr   error
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (models.Session, error) {
	f.loginCalls++
	return f.session, f.err
}

func (f *fakeAPI) Register(_ context.Context, _, _, _ string) (models.Session, error) {
	f.registerCalls++
	return f.session, f.err
}

func (f *fakeAPI) Logout(_ context.Context, token string) {
	f.logoutTokens = append(f.logoutTokens, token)
}

func (f *fakeAPI) Me(_ context.Context, token string) (models.User, error) {
	f.meTokens = append(f.meTokens, token)
	return f.user, f.meErr
}

var alice = models.Session{
	User:  models.User{ID: "u-1", Name: "Alice", Email: "alice@example.com", Role: models.RoleUser},
	Token: "token-1",
}

func newTestController(api *fakeAPI, opts ...Option) (*Controller, *Store) {
	store := NewStore()
	rules := validation.New(models.PasswordPolicyConfiguration{MinLength: 8})
	return NewController(api, rules, store, zap.NewNop(), opts...), store
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("should store the session on success", func(t *testing.T) {
		api := &fakeAPI{session: alice}
		c, store := newTestController(api)

		session, err := c.Login(ctx, " alice@example.com ", "whatever")
		require.NoError(t, err)
		assert.Equal(t, alice, session)
		assert.Equal(t, alice, store.Current())
		assert.True(t, store.IsAuthenticated())
	})

	t.Run("should return field errors without calling the service", func(t *testing.T) {
		api := &fakeAPI{session: alice}
		c, store := newTestController(api)

		_, err := c.Login(ctx, "nope", "")
		require.Error(t, err)

		var vErr *apierrors.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, validation.MsgEmailInvalid, vErr.Fields[models.FieldEmail])
		assert.Equal(t, validation.MsgPasswordRequired, vErr.Fields[models.FieldPassword])
		assert.Zero(t, api.loginCalls)
		assert.False(t, store.IsAuthenticated())
	})

	t.Run("should not apply the password policy to logins", func(t *testing.T) {
		api := &fakeAPI{session: alice}
		c, _ := newTestController(api)

		_, err := c.Login(ctx, "alice@example.com", "short")
		require.NoError(t, err)
		assert.Equal(t, 1, api.loginCalls)
	})

	t.Run("should return the service message unmodified", func(t *testing.T) {
		api := &fakeAPI{err: apierrors.NewTransportError(http.StatusUnauthorized, "Invalid credentials")}
		c, store := newTestController(api)

		_, err := c.Login(ctx, "alice@example.com", "password1")
		require.Error(t, err)
		assert.Equal(t, "Invalid credentials", apierrors.Message(err))
		assert.False(t, store.IsAuthenticated())
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	form := models.RegisterForm{
		Name:            "Alice",
		Email:           "alice@example.com",
		Password:        "Secure123!",
		ConfirmPassword: "Secure123!",
	}

	t.Run("should store the session on success", func(t *testing.T) {
		api := &fakeAPI{session: alice}
		c, store := newTestController(api)

		_, err := c.Register(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, 1, api.registerCalls)
		assert.Equal(t, "token-1", store.Token())
	})

	t.Run("should reject a confirmation mismatch locally", func(t *testing.T) {
		api := &fakeAPI{session: alice}
		c, _ := newTestController(api)

		mismatch := form
		mismatch.ConfirmPassword = "Secure123?"
		_, err := c.Register(ctx, mismatch)
		require.Error(t, err)
		assert.True(t, apierrors.IsPolicyViolation(err))
		assert.Equal(t, validation.MsgPasswordMismatch, validation.Fields(err)[models.FieldConfirmPassword])
		assert.Zero(t, api.registerCalls)
	})

	t.Run("should report every invalid field at once", func(t *testing.T) {
		api := &fakeAPI{}
		c, _ := newTestController(api)

		_, err := c.Register(ctx, models.RegisterForm{Email: "bad", Password: "short", ConfirmPassword: "other"})
		require.Error(t, err)

		fields := validation.Fields(err)
		assert.Contains(t, fields, models.FieldName)
		assert.Contains(t, fields, models.FieldEmail)
		assert.Contains(t, fields, models.FieldPassword)
		assert.Contains(t, fields, models.FieldConfirmPassword)
		assert.Zero(t, api.registerCalls)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("should call the service and clear the store", func(t *testing.T) {
		api := &fakeAPI{}
		c, store := newTestController(api)
		store.Set(alice)

		c.Logout(ctx)
		assert.Equal(t, []string{"token-1"}, api.logoutTokens)
		assert.False(t, store.IsAuthenticated())
		assert.Equal(t, models.Session{}, store.Current())
	})

	t.Run("should do nothing without a session", func(t *testing.T) {
		api := &fakeAPI{}
		c, _ := newTestController(api)

		c.Logout(ctx)
		assert.Empty(t, api.logoutTokens)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("should refresh the stored user", func(t *testing.T) {
		promoted := alice.User
		promoted.Role = models.RoleAdmin
		api := &fakeAPI{user: promoted}
		c, store := newTestController(api)
		store.Set(alice)

		user, err := c.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, promoted, user)
		assert.True(t, store.Current().CanAuthor())
		assert.Equal(t, []string{"token-1"}, api.meTokens)
	})

	t.Run("should clear the store when the token is rejected", func(t *testing.T) {
		api := &fakeAPI{meErr: apierrors.NewTransportError(http.StatusUnauthorized, "Unauthorized")}
		c, store := newTestController(api)
		store.Set(alice)

		_, err := c.Restore(ctx)
		require.Error(t, err)
		assert.False(t, store.IsAuthenticated())
	})

	t.Run("should fail without a stored token", func(t *testing.T) {
		api := &fakeAPI{}
		c, _ := newTestController(api)

		_, err := c.Restore(ctx)
		assert.ErrorIs(t, err, apierrors.ErrNotAuthenticated)
		assert.Empty(t, api.meTokens)
	})
}

func TestSessionEvents(t *testing.T) {
	ch := messaging.NewMemoryChannel()
	pub := messaging.NewMemoryPublisher(ch, "session_events")
	defer pub.Close()
	msgCh := messaging.NewMemorySubscriber(context.Background(), ch, "session_events").Subscribe()

	api := &fakeAPI{session: alice}
	notifier := messaging.NewFlowNotifier(pub, zap.NewNop())
	defer notifier.Close()
	c, _ := newTestController(api, WithNotifier(notifier))

	_, err := c.Login(context.Background(), "alice@example.com", "password1")
	require.NoError(t, err)

	select {
	case msg := <-msgCh:
		msg.Ack()
		event, err := messaging.DecodeFlowEvent(msg)
		require.NoError(t, err)
		assert.Equal(t, models.FlowEventSessionOpened, event.Type)
		assert.Equal(t, "alice@example.com", event.UserEmail)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
}
