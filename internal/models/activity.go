package models

import "time"

type ActivityAction string

const (
	ActivityRegistered     ActivityAction = "registered"
	ActivityLoginSucceeded ActivityAction = "login_succeeded"
	ActivityLoginFailed    ActivityAction = "login_failed"
	ActivityLoggedOut      ActivityAction = "logged_out"
	ActivityResetRequested ActivityAction = "reset_requested"
	ActivityOTPVerified    ActivityAction = "otp_verified"
	ActivityOTPRejected    ActivityAction = "otp_rejected"
	ActivityResetLocked    ActivityAction = "reset_locked"
	ActivityPasswordReset  ActivityAction = "password_reset"
)

// Activity is one audited identity service event.
type Activity struct {
	Action    ActivityAction `json:"action"`
	Email     string         `json:"email"`
	UserID    string         `json:"user_id,omitempty"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

type ActivityCriteria struct {
	Email   string
	Actions []ActivityAction
	// Since bounds the search window. Zero means the last 30 days.
	Since time.Time
}
