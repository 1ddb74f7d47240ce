package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	apierrors "authflow/internal/errors"
	"authflow/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	OTPLength = 6
	// DefaultMaxPasswordLength applies when the policy leaves MaxLength unset.
	DefaultMaxPasswordLength = 72
)

const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Please enter a valid email address"
	MsgEmailTooLong     = "Email is too long"
	MsgPasswordRequired = "Password is required"
	MsgPasswordMismatch = "Passwords do not match"
	MsgNameRequired     = "Name is required"
	MsgNameTooLong      = "Name is too long"
	MsgOTPRequired      = "OTP is required"
	MsgOTPFormat        = "OTP must be 6 digits"
)

// fieldMessages maps a field and a failed validator tag to the message shown under the field.
var fieldMessages = map[string]map[string]string{
	models.FieldEmail: {
		"required": MsgEmailRequired,
		"email":    MsgEmailInvalid,
		"max":      MsgEmailTooLong,
	},
	models.FieldPassword: {
		"required": MsgPasswordRequired,
	},
	models.FieldName: {
		"required": MsgNameRequired,
		"max":      MsgNameTooLong,
	},
	models.FieldOTP: {
		"required": MsgOTPRequired,
		"len":      MsgOTPFormat,
		"number":   MsgOTPFormat,
	},
}

// Rules holds the client-side validation rules. Every method is free of side effects
// and returns nil or an *apierrors.ValidationError.
type Rules struct {
	validate *validator.Validate
	policy   models.PasswordPolicyConfiguration
}

func New(policy models.PasswordPolicyConfiguration) *Rules {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if policy.MinLength < 1 {
		policy.MinLength = 1
	}
	if policy.MaxLength < 1 {
		policy.MaxLength = DefaultMaxPasswordLength
	}

	return &Rules{validate: v, policy: policy}
}

func (r *Rules) Policy() models.PasswordPolicyConfiguration {
	return r.policy
}

func (r *Rules) ValidateEmail(value string) error {
	fields := map[string]string{}
	r.checkVar(fields, models.FieldEmail, value, "required,email,max=254")
	return result(apierrors.CodeInvalidFormat, fields)
}

func (r *Rules) ValidatePassword(value string) error {
	fields := map[string]string{}
	if msg := r.passwordMessage(value); msg != "" {
		fields[models.FieldPassword] = msg
	}
	return result(apierrors.CodePolicyViolation, fields)
}

func (r *Rules) ValidateOTP(value string) error {
	fields := map[string]string{}
	r.checkVar(fields, models.FieldOTP, value, fmt.Sprintf("required,len=%d,number", OTPLength))
	return result(apierrors.CodeInvalidFormat, fields)
}

// ValidateLoginForm only checks presence and shape. Stored passwords may predate the
// current policy, so the policy is not applied to logins.
func (r *Rules) ValidateLoginForm(email, password string) error {
	fields := map[string]string{}
	r.checkStruct(fields, models.LoginForm{Email: email, Password: password})
	if _, ok := fields[models.FieldPassword]; !ok {
		if msg := r.tooLongMessage(password); msg != "" {
			fields[models.FieldPassword] = msg
		}
	}
	return result(apierrors.CodeInvalidFormat, fields)
}

func (r *Rules) ValidateRegisterForm(email, password, name string) error {
	fields := map[string]string{}
	r.checkStruct(fields, models.RegisterForm{Email: email, Password: password, Name: name})

	code := apierrors.CodeInvalidFormat
	if _, ok := fields[models.FieldPassword]; !ok {
		if msg := r.passwordMessage(password); msg != "" {
			fields[models.FieldPassword] = msg
			code = apierrors.CodePolicyViolation
		}
	}
	return result(code, fields)
}

// ValidateRegistration is ValidateRegisterForm plus the confirmation check.
func (r *Rules) ValidateRegistration(form models.RegisterForm) error {
	fields := map[string]string{}
	code := apierrors.CodeInvalidFormat

	var vErr *apierrors.ValidationError
	if err := r.ValidateRegisterForm(form.Email, form.Password, form.Name); errors.As(err, &vErr) {
		fields = vErr.Fields
		code = vErr.Code
	}

	if form.Password != form.ConfirmPassword {
		fields[models.FieldConfirmPassword] = MsgPasswordMismatch
		code = apierrors.CodePolicyViolation
	}
	return result(code, fields)
}

// ValidatePasswordReset runs the policy and the confirmation check independently
// so both problems can be reported together.
func (r *Rules) ValidatePasswordReset(newPassword, confirmPassword string) error {
	fields := map[string]string{}
	if msg := r.passwordMessage(newPassword); msg != "" {
		fields[models.FieldNewPassword] = msg
	}
	if newPassword != confirmPassword {
		fields[models.FieldConfirmPassword] = MsgPasswordMismatch
	}
	return result(apierrors.CodePolicyViolation, fields)
}

func (r *Rules) passwordMessage(value string) string {
	if value == "" {
		return MsgPasswordRequired
	}
	if utf8.RuneCountInString(value) < r.policy.MinLength {
		return fmt.Sprintf("Password must be at least %d characters", r.policy.MinLength)
	}
	if msg := r.tooLongMessage(value); msg != "" {
		return msg
	}

	var upper, lower, digit, symbol bool
	for _, c := range value {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			symbol = true
		}
	}

	switch {
	case r.policy.RequireUpper && !upper:
		return "Password must contain an uppercase letter"
	case r.policy.RequireLower && !lower:
		return "Password must contain a lowercase letter"
	case r.policy.RequireDigit && !digit:
		return "Password must contain a digit"
	case r.policy.RequireSymbol && !symbol:
		return "Password must contain a special character"
	}
	return ""
}

func (r *Rules) tooLongMessage(value string) string {
	if utf8.RuneCountInString(value) > r.policy.MaxLength {
		return fmt.Sprintf("Password must be at most %d characters", r.policy.MaxLength)
	}
	return ""
}

func (r *Rules) checkVar(fields map[string]string, field string, value string, tag string) {
	err := r.validate.Var(value, tag)

	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		fields[field] = message(field, vErrs[0].Tag())
	}
}

func (r *Rules) checkStruct(fields map[string]string, s any) {
	err := r.validate.Struct(s)

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return
	}
	for _, fe := range vErrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe.Field(), fe.Tag())
	}
}

func message(field, tag string) string {
	if msg, ok := fieldMessages[field][tag]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid", field)
}

func result(code string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apierrors.NewValidationError(code, fields)
}

// SanitizeOTP keeps ASCII digits only and truncates to OTPLength, mirroring the
// behaviour of the code input box.
func SanitizeOTP(input string) string {
	var b strings.Builder
	for _, c := range input {
		if b.Len() == OTPLength {
			break
		}
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Fields extracts the field map from a validation error, or nil.
func Fields(err error) map[string]string {
	var vErr *apierrors.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Fields
	}
	return nil
}
