package models

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the user may see privileged UI such as content authoring.
// The identity service remains authoritative for every privileged request.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is what a successful login or register yields to the caller's session store.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// CanAuthor gates the authoring entry point of the navigation.
func (s Session) CanAuthor() bool {
	return s.Token != "" && s.User.IsAdmin()
}

type LoginForm struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

type RegisterForm struct {
	Name            string `json:"name"            validate:"required,max=100"`
	Email           string `json:"email"           validate:"required,email,max=254"`
	Password        string `json:"password"        validate:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}

type AuthLoginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRegisterBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthLoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type PasswordResetRequestBody struct {
	Email string `json:"email"`
}

type PasswordResetRequestResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp"`
}

type VerifyOTPBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTPResponse leaves Valid nil when the service omits it; only an explicit
// false is a rejection.
type VerifyOTPResponse struct {
	Valid   *bool  `json:"valid,omitempty"`
	Message string `json:"message"`
}

// Rejected reports whether the service answered 2xx but declined the code.
func (r VerifyOTPResponse) Rejected() bool {
	return r.Valid != nil && !*r.Valid
}

type PasswordResetCompleteBody struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// PasswordResetCompleteResponse carries an optional session when the identity
// service signs the user in after a successful reset.
type PasswordResetCompleteResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
	Token   string `json:"token,omitempty"`
}

// ErrorResponse is the body shape of every non-2xx answer from the identity service.
type ErrorResponse struct {
	Error string `json:"error"`
}
