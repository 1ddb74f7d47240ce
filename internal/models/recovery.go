package models

type RecoveryState string

const (
	RecoveryStateEmail           RecoveryState = "email"
	RecoveryStateOTPVerification RecoveryState = "otp"
	RecoveryStatePasswordReset   RecoveryState = "reset-password"
	RecoveryStateSuccess         RecoveryState = "success"
)

// Next returns the state that follows s, or s itself when it is terminal.
func (s RecoveryState) Next() RecoveryState {
	switch s {
	case RecoveryStateEmail:
		return RecoveryStateOTPVerification
	case RecoveryStateOTPVerification:
		return RecoveryStatePasswordReset
	case RecoveryStatePasswordReset:
		return RecoveryStateSuccess
	default:
		return s
	}
}

// Field names used as keys of RecoverySession.FieldErrors and by the validation rules.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldName            = "name"
	FieldOTP             = "otp"
	FieldNewPassword     = "newPassword"
	FieldConfirmPassword = "confirmPassword"
)

// RecoverySession is the full state of one password recovery attempt.
type RecoverySession struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	OTPCode           string            `json:"-"`
	NewPassword       string            `json:"-"`
	ConfirmPassword   string            `json:"-"`
	CurrentState      RecoveryState     `json:"current_state"`
	CooldownRemaining int               `json:"cooldown_remaining"`
	Busy              bool              `json:"busy"`
	LastError         string            `json:"last_error,omitempty"`
	FieldErrors       map[string]string `json:"field_errors,omitempty"`
}

func NewRecoverySession(id string) RecoverySession {
	return RecoverySession{
		ID:           id,
		CurrentState: RecoveryStateEmail,
		FieldErrors:  map[string]string{},
	}
}

// CanResend reports whether a resend request may be issued right now.
func (s RecoverySession) CanResend() bool {
	return s.CurrentState == RecoveryStateOTPVerification && s.CooldownRemaining == 0 && !s.Busy
}

// Clone returns a copy that shares no mutable state with s.
func (s RecoverySession) Clone() RecoverySession {
	c := s
	c.FieldErrors = make(map[string]string, len(s.FieldErrors))
	for k, v := range s.FieldErrors {
		c.FieldErrors[k] = v
	}
	return c
}
