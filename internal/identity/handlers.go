package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"authflow/internal/models"
	"authflow/internal/notifier"
	"authflow/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type claimsKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		c, err := parseBearer(s.config.JWTSecret, r.Header.Get("Authorization"))
		if err != nil || s.isRevoked(c.ID) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(fn)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	body, ok := decode[models.AuthRegisterBody](w, r)
	if !ok {
		return
	}
	body.Email = strings.TrimSpace(body.Email)

	if err := s.rules.ValidateRegisterForm(body.Email, body.Password, body.Name); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	hash, err := createHash(body.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := models.User{ID: uuid.NewString(), Name: strings.TrimSpace(body.Name), Email: body.Email, Role: models.RoleUser}
	if err = s.addAccount(&account{user: user, hash: hash}); err != nil {
		respondError(w, http.StatusConflict, "User already exists")
		return
	}

	s.logger.Info("User registered", zap.String("email", user.Email))
	s.record(models.ActivityRegistered, user.Email, user.ID, "Account created")
	s.respondSession(w, http.StatusCreated, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, ok := decode[models.AuthLoginBody](w, r)
	if !ok {
		return
	}

	a, found := s.findAccount(body.Email)
	if !found || !comparePassword(body.Password, a.hash) {
		s.logger.Info("Login rejected", zap.String("email", body.Email))
		s.record(models.ActivityLoginFailed, body.Email, "", "Invalid credentials")
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.record(models.ActivityLoginSucceeded, a.user.Email, a.user.ID, "Signed in")
	s.respondSession(w, http.StatusOK, a.user)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	c := r.Context().Value(claimsKey{}).(claims)
	s.revoke(c)
	s.record(models.ActivityLoggedOut, c.Email, c.Subject, "Signed out")
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	c := r.Context().Value(claimsKey{}).(claims)

	a, found := s.findAccount(c.Email)
	if !found {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, a.user)
}

// forgotPassword issues a new code and echoes it back alongside the optional mailer.
func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	body, ok := decode[models.PasswordResetRequestBody](w, r)
	if !ok {
		return
	}

	if err := s.rules.ValidateEmail(strings.TrimSpace(body.Email)); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if s.config.ResetRequestsPerMinute > 0 {
		retryAfter, err := s.cache.GetRateLimit(normalizeEmail(body.Email), s.config.ResetRequestsPerMinute)
		if err != nil {
			s.logger.Error("Failed to check reset rate limit", zap.Error(err))
		} else if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
	}

	a, found := s.findAccount(body.Email)
	if !found {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	challenge, code, err := s.newResetChallenge(a.user.Email, s.now())
	if err != nil {
		s.logger.Error("Failed to generate reset code", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	s.resets[normalizeEmail(a.user.Email)] = challenge
	s.mu.Unlock()

	s.logger.Info("Password reset requested", zap.String("email", a.user.Email))
	s.record(models.ActivityResetRequested, a.user.Email, a.user.ID, "Reset code issued")
	s.mailCode(r.Context(), a.user.Email, code)
	respondJSON(w, http.StatusOK, models.PasswordResetRequestResponse{Message: "OTP sent to your email", OTP: code})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	body, ok := decode[models.VerifyOTPBody](w, r)
	if !ok {
		return
	}
	key := normalizeEmail(body.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, found := s.resets[key]
	if !found {
		respondError(w, http.StatusBadRequest, "No password reset requested")
		return
	}
	if challenge.attempts >= s.config.MaxAttempts {
		delete(s.resets, key)
		s.logger.Warn("Password reset locked after too many attempts", zap.String("email", body.Email))
		s.record(models.ActivityResetLocked, body.Email, "", "Too many attempts")
		respondError(w, http.StatusTooManyRequests, "Too many attempts")
		return
	}
	if !s.validCode(challenge, body.OTP, s.now()) {
		challenge.attempts++
		s.record(models.ActivityOTPRejected, body.Email, "", "Invalid OTP")
		respondError(w, http.StatusBadRequest, "Invalid OTP")
		return
	}

	challenge.verified = true
	s.record(models.ActivityOTPVerified, body.Email, "", "OTP verified")
	valid := true
	respondJSON(w, http.StatusOK, models.VerifyOTPResponse{Valid: &valid, Message: "OTP verified"})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	body, ok := decode[models.PasswordResetCompleteBody](w, r)
	if !ok {
		return
	}
	key := normalizeEmail(body.Email)

	if err := s.rules.ValidatePassword(body.NewPassword); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	s.mu.Lock()
	challenge, found := s.resets[key]
	usable := found && challenge.verified && s.validCode(challenge, body.OTP, s.now())
	s.mu.Unlock()
	if !usable {
		respondError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}

	hash, err := createHash(body.NewPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	a, found := s.accounts[key]
	if found {
		a.hash = hash
	}
	delete(s.resets, key)
	s.mu.Unlock()
	if !found {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	token, err := newAccessToken(s.config.JWTSecret, a.user, s.config.TokenExpiry, s.now())
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info("Password reset completed", zap.String("email", a.user.Email))
	s.record(models.ActivityPasswordReset, a.user.Email, a.user.ID, "Password changed")
	user := a.user
	respondJSON(w, http.StatusOK, models.PasswordResetCompleteResponse{
		Message: "Password reset successful",
		User:    &user,
		Token:   token,
	})
}

func requireAdmin(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(claimsKey{}).(claims)
		if c.Role != models.RoleAdmin {
			respondError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// listActivity serves GET /activity?email=&action=&limit=, newest first.
func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	criteria := models.ActivityCriteria{Email: normalizeEmail(q.Get("email"))}
	for _, action := range q["action"] {
		criteria.Actions = append(criteria.Actions, models.ActivityAction(action))
	}

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	activities, err := s.audit.Search(criteria, limit)
	if err != nil {
		s.logger.Error("Failed to search activity", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, activities)
}

func (s *Server) mailCode(ctx context.Context, email, code string) {
	if s.mailer == nil {
		return
	}

	err := s.mailer.Notify(ctx, notifier.Message{
		To:      email,
		Subject: "Your password reset code",
		Body: fmt.Sprintf("Your password reset code is %s. It is valid for %d minutes.",
			code, s.config.OTPPeriod/60),
	})
	if err != nil {
		s.logger.Warn("Failed to deliver reset code", zap.String("email", email), zap.Error(err))
	}
}

func (s *Server) respondSession(w http.ResponseWriter, status int, user models.User) {
	token, err := newAccessToken(s.config.JWTSecret, user, s.config.TokenExpiry, s.now())
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, status, models.AuthLoginResponse{User: user, Token: token})
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return body, false
	}
	return body, true
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("Failed to write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

func validationMessage(err error) string {
	fields := validation.Fields(err)
	if len(fields) == 0 {
		return err.Error()
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, fields[k])
	}
	return strings.Join(messages, "; ")
}
