package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	apierrors "authflow/internal/errors"
	"authflow/internal/messaging"
	"authflow/internal/models"
	"authflow/internal/recovery"
	"authflow/internal/session"
	"authflow/internal/validation"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const consoleHelp = `Commands:
  login <email> <password>
  register <name> <email> <password> <confirm>
  me
  logout
  forgot <email>
  otp <code>
  resend
  reset <new password> <confirm>
  restart
  status
  help
  quit`

// Console drives the session and recovery controllers from line-based input.
type Console struct {
	recovery *recovery.Controller
	sessions *session.Controller
	store    *session.Store

	mu  sync.Mutex
	out io.Writer
}

func NewConsole(rc *recovery.Controller, sc *session.Controller, store *session.Store, out io.Writer) *Console {
	return &Console{recovery: rc, sessions: sc, store: store, out: out}
}

// Run executes commands from in until it is exhausted, quit is entered or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	c.printf("Type 'help' for the list of commands.\n")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if !c.Execute(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Execute runs one command line and reports whether the console should keep going.
func (c *Console) Execute(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return true
	}

	command, args := strings.ToLower(args[0]), args[1:]
	switch command {
	case "quit", "exit":
		return false
	case "help":
		c.printf("%s\n", consoleHelp)
	case "status":
		c.printStatus()
	case "login":
		if c.expectArgs(args, 2, "login <email> <password>") {
			c.login(ctx, args[0], args[1])
		}
	case "register":
		if c.expectArgs(args, 4, "register <name> <email> <password> <confirm>") {
			c.register(ctx, models.RegisterForm{Name: args[0], Email: args[1], Password: args[2], ConfirmPassword: args[3]})
		}
	case "me":
		c.me(ctx)
	case "logout":
		c.sessions.Logout(ctx)
		c.printf("Logged out.\n")
	case "forgot":
		if c.expectArgs(args, 1, "forgot <email>") {
			c.recoveryStep(c.recovery.SubmitEmail(ctx, args[0]))
		}
	case "otp":
		if c.expectArgs(args, 1, "otp <code>") {
			c.recoveryStep(c.recovery.SubmitOTP(ctx, validation.SanitizeOTP(args[0])))
		}
	case "resend":
		c.recoveryStep(c.recovery.ResendOTP(ctx))
	case "reset":
		if c.expectArgs(args, 2, "reset <new password> <confirm>") {
			c.recoveryStep(c.recovery.SubmitNewPassword(ctx, args[0], args[1]))
		}
	case "restart":
		c.recoveryStep(c.recovery.Restart())
	default:
		c.printf("Unknown command %q. Type 'help' for the list of commands.\n", command)
	}
	return true
}

// Watch prints flow events that happen between commands, such as the end of the
// resend cooldown.
func (c *Console) Watch(ctx context.Context, events <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			msg.Ack()

			event, err := messaging.DecodeFlowEvent(msg)
			if err != nil {
				zap.L().Warn("Dropping malformed flow event", zap.Error(err))
				continue
			}
			if event.Type == models.FlowEventCooldownTick && event.CooldownRemaining == 0 {
				c.printf("You can request a new code now: resend\n")
			}
		}
	}
}

func (c *Console) login(ctx context.Context, email, password string) {
	s, err := c.sessions.Login(ctx, email, password)
	if err != nil {
		c.printError(err)
		return
	}
	c.printf("Welcome back, %s.\n", s.User.Name)
	c.printAuthoring(s)
}

func (c *Console) register(ctx context.Context, form models.RegisterForm) {
	s, err := c.sessions.Register(ctx, form)
	if err != nil {
		c.printError(err)
		return
	}
	c.printf("Account created. Welcome, %s.\n", s.User.Name)
	c.printAuthoring(s)
}

func (c *Console) me(ctx context.Context) {
	user, err := c.sessions.Restore(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	c.printf("%s <%s> (%s)\n", user.Name, user.Email, user.Role)
}

func (c *Console) recoveryStep(err error) {
	if err != nil {
		c.printError(err)
		if !errors.Is(err, apierrors.ErrCooldownActive) {
			return
		}
	}
	c.printStatus()
}

func (c *Console) printStatus() {
	s := c.recovery.Snapshot()
	switch s.CurrentState {
	case models.RecoveryStateEmail:
		c.printf("Forgot your password? Enter your email: forgot <email>\n")
	case models.RecoveryStateOTPVerification:
		c.printf("Enter the 6-digit code sent to %s: otp <code>\n", s.Email)
		if s.CooldownRemaining > 0 {
			c.printf("Resend available in %ds\n", s.CooldownRemaining)
		} else {
			c.printf("Didn't get it? resend\n")
		}
	case models.RecoveryStatePasswordReset:
		c.printf("Choose a new password: reset <new password> <confirm>\n")
	case models.RecoveryStateSuccess:
		c.printf("Password reset successful. You can now log in.\n")
	}

	if current := c.store.Current(); current.Token != "" {
		c.printf("Signed in as %s\n", current.User.Email)
	}
}

func (c *Console) printAuthoring(s models.Session) {
	if s.CanAuthor() {
		c.printf("Authoring tools are available.\n")
	}
}

func (c *Console) printError(err error) {
	var vErr *apierrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		keys := make([]string, 0, len(vErr.Fields))
		for k := range vErr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.printf("  %s: %s\n", k, vErr.Fields[k])
		}
	case errors.Is(err, apierrors.ErrCooldownActive):
		c.printf("Please wait before requesting a new code.\n")
	case errors.Is(err, apierrors.ErrBusy):
		c.printf("Please wait for the current request to finish.\n")
	case errors.Is(err, apierrors.ErrInvalidTransition):
		c.printf("That is not available at this step.\n")
	case errors.Is(err, apierrors.ErrNotAuthenticated):
		c.printf("You are not signed in.\n")
	default:
		c.printf("Error: %s\n", apierrors.Message(err))
	}
}

func (c *Console) expectArgs(args []string, n int, usage string) bool {
	if len(args) != n {
		c.printf("Usage: %s\n", usage)
		return false
	}
	return true
}

func (c *Console) printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, a...)
}
