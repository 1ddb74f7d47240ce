package recovery

import (
	"fmt"

	apierrors "authflow/internal/errors"
	"authflow/internal/models"
)

// Event is an input to Apply.
type Event interface {
	event()
}

// SubmissionStarted marks a network submission as in flight and clears the previous errors.
type SubmissionStarted struct{}

// SubmissionFailed records a transport failure. The current step is kept.
type SubmissionFailed struct{ Message string }

// ValidationFailed records client-side field errors. Nothing was sent.
type ValidationFailed struct{ Fields map[string]string }

// FieldEdited drops the error of a field the user changed.
type FieldEdited struct{ Field string }

// EmailAccepted completes the Email step.
type EmailAccepted struct{ Email string }

// OTPAccepted completes the OTPVerification step.
type OTPAccepted struct{ Code string }

// ResendAccepted completes a resend without changing the step.
type ResendAccepted struct{}

// PasswordAccepted completes the PasswordReset step.
type PasswordAccepted struct {
	NewPassword     string
	ConfirmPassword string
}

// CooldownSet (re)starts the resend cooldown at Remaining.
type CooldownSet struct{ Remaining int }

// CooldownTicked removes exactly one tick from the cooldown.
type CooldownTicked struct{}

func (SubmissionStarted) event() {}
func (SubmissionFailed) event()  {}
func (ValidationFailed) event()  {}
func (FieldEdited) event()       {}
func (EmailAccepted) event()     {}
func (OTPAccepted) event()       {}
func (ResendAccepted) event()    {}
func (PasswordAccepted) event()  {}
func (CooldownSet) event()       {}
func (CooldownTicked) event()    {}

// fieldStates lists the step in which each field can be edited.
var fieldStates = map[string]models.RecoveryState{
	models.FieldEmail:           models.RecoveryStateEmail,
	models.FieldOTP:             models.RecoveryStateOTPVerification,
	models.FieldNewPassword:     models.RecoveryStatePasswordReset,
	models.FieldConfirmPassword: models.RecoveryStatePasswordReset,
}

// Apply returns the session that results from ev. It never mutates s; on error the
// returned session is s unchanged.
func Apply(s models.RecoverySession, ev Event) (models.RecoverySession, error) {
	next := s.Clone()

	switch e := ev.(type) {
	case SubmissionStarted:
		if s.Busy {
			return s, apierrors.ErrBusy
		}
		if s.CurrentState == models.RecoveryStateSuccess {
			return s, invalid(s, "submit")
		}
		next.Busy = true
		next.LastError = ""
		next.FieldErrors = map[string]string{}

	case SubmissionFailed:
		next.Busy = false
		next.LastError = e.Message

	case ValidationFailed:
		if s.Busy {
			return s, apierrors.ErrBusy
		}
		next.LastError = ""
		next.FieldErrors = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			next.FieldErrors[k] = v
		}

	case FieldEdited:
		state, ok := fieldStates[e.Field]
		if !ok {
			return s, fmt.Errorf("unknown field %q: %w", e.Field, apierrors.ErrInvalidTransition)
		}
		if state != s.CurrentState {
			return s, invalid(s, "edit "+e.Field)
		}
		delete(next.FieldErrors, e.Field)

	case EmailAccepted:
		if err := requireInFlight(s, models.RecoveryStateEmail); err != nil {
			return s, err
		}
		next.Email = e.Email
		next.CurrentState = s.CurrentState.Next()
		next.Busy = false

	case OTPAccepted:
		if err := requireInFlight(s, models.RecoveryStateOTPVerification); err != nil {
			return s, err
		}
		next.OTPCode = e.Code
		next.CurrentState = s.CurrentState.Next()
		next.CooldownRemaining = 0
		next.Busy = false

	case ResendAccepted:
		if err := requireInFlight(s, models.RecoveryStateOTPVerification); err != nil {
			return s, err
		}
		next.Busy = false

	case PasswordAccepted:
		if err := requireInFlight(s, models.RecoveryStatePasswordReset); err != nil {
			return s, err
		}
		next.NewPassword = e.NewPassword
		next.ConfirmPassword = e.ConfirmPassword
		next.CurrentState = s.CurrentState.Next()
		next.Busy = false

	case CooldownSet:
		if s.CurrentState != models.RecoveryStateOTPVerification {
			return s, invalid(s, "start cooldown")
		}
		if e.Remaining < 0 {
			return s, fmt.Errorf("negative cooldown %d: %w", e.Remaining, apierrors.ErrInvalidTransition)
		}
		next.CooldownRemaining = e.Remaining

	case CooldownTicked:
		if next.CooldownRemaining > 0 {
			next.CooldownRemaining--
		}

	default:
		return s, fmt.Errorf("unknown event %T: %w", ev, apierrors.ErrInvalidTransition)
	}

	return next, nil
}

func requireInFlight(s models.RecoverySession, state models.RecoveryState) error {
	if s.CurrentState != state {
		return invalid(s, "complete "+string(state))
	}
	if !s.Busy {
		return fmt.Errorf("no submission in flight: %w", apierrors.ErrInvalidTransition)
	}
	return nil
}

func invalid(s models.RecoverySession, action string) error {
	return fmt.Errorf("cannot %s in step %s: %w", action, s.CurrentState, apierrors.ErrInvalidTransition)
}
