package transport

import (
	"context"
	"net/http"

	"authflow/internal/configuration"
	apierrors "authflow/internal/errors"
	"authflow/internal/models"

	"go.uber.org/zap"
)

const defaultRejectedOTPMessage = "Invalid OTP"

func (c *Client) Login(ctx context.Context, email, password string) (models.Session, error) {
	res, err := Call[models.AuthLoginResponse](ctx, c, http.MethodPost, configuration.PathLogin,
		models.AuthLoginBody{Email: email, Password: password}, "")
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{User: res.User, Token: res.Token}, nil
}

func (c *Client) Register(ctx context.Context, email, password, name string) (models.Session, error) {
	res, err := Call[models.AuthLoginResponse](ctx, c, http.MethodPost, configuration.PathRegister,
		models.AuthRegisterBody{Email: email, Password: password, Name: name}, "")
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{User: res.User, Token: res.Token}, nil
}

// Logout notifies the identity service. The outcome is not reported to the caller.
func (c *Client) Logout(ctx context.Context, token string) {
	if _, err := Call[struct{}](ctx, c, http.MethodPost, configuration.PathLogout, nil, token); err != nil {
		c.logger.Debug("Logout call failed", zap.Error(err))
	}
}

func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	return Call[models.User](ctx, c, http.MethodGet, configuration.PathMe, nil, token)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (models.PasswordResetRequestResponse, error) {
	return Call[models.PasswordResetRequestResponse](ctx, c, http.MethodPost, configuration.PathForgotPassword,
		models.PasswordResetRequestBody{Email: email}, "")
}

// VerifyOTP treats an explicit `"valid": false` in a 2xx answer as a rejection.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (models.VerifyOTPResponse, error) {
	res, err := Call[models.VerifyOTPResponse](ctx, c, http.MethodPost, configuration.PathVerifyOTP,
		models.VerifyOTPBody{Email: email, OTP: otp}, "")
	if err != nil {
		return res, err
	}

	if res.Rejected() {
		message := res.Message
		if message == "" {
			message = defaultRejectedOTPMessage
		}
		return res, apierrors.NewTransportError(http.StatusOK, message)
	}
	return res, nil
}

func (c *Client) ResetPassword(
	ctx context.Context,
	email string,
	otp string,
	newPassword string,
) (models.PasswordResetCompleteResponse, error) {
	return Call[models.PasswordResetCompleteResponse](ctx, c, http.MethodPost, configuration.PathResetPassword,
		models.PasswordResetCompleteBody{Email: email, OTP: otp, NewPassword: newPassword}, "")
}
