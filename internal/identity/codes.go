package identity

import (
	"time"

	"authflow/internal/configuration"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// resetChallenge is an outstanding password reset for one account.
type resetChallenge struct {
	secret   string
	attempts int
	verified bool
	issuedAt time.Time
}

func (s *Server) codeOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.config.OTPPeriod),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// newResetChallenge creates a fresh secret for email and returns the current code.
func (s *Server) newResetChallenge(email string, now time.Time) (*resetChallenge, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      configuration.AppName,
		AccountName: email,
		Period:      uint(s.config.OTPPeriod),
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, "", err
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), now, s.codeOpts())
	if err != nil {
		return nil, "", err
	}

	return &resetChallenge{secret: key.Secret(), issuedAt: now}, code, nil
}

func (s *Server) validCode(challenge *resetChallenge, code string, now time.Time) bool {
	if now.Sub(challenge.issuedAt) > time.Duration(s.config.OTPPeriod)*time.Second {
		return false
	}
	ok, err := totp.ValidateCustom(code, challenge.secret, now, s.codeOpts())
	return err == nil && ok
}
