package models

import "time"

type Configuration struct {
	App            AppConfiguration            `mapstructure:"app"             validate:"required"`
	Identity       IdentityConfiguration       `mapstructure:"identity"        validate:"required"`
	Recovery       RecoveryConfiguration       `mapstructure:"recovery"        validate:"required"`
	PasswordPolicy PasswordPolicyConfiguration `mapstructure:"password_policy" validate:"required"`
	Stub           StubConfiguration           `mapstructure:"stub"`
	Telemetry      TelemetryConfiguration      `mapstructure:"telemetry"`
}

type AppConfiguration struct {
	Profile  string `mapstructure:"profile"   validate:"oneof=client stub"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error fatal panic"`
}

type IdentityConfiguration struct {
	APIURL string `mapstructure:"api_url"         validate:"required,http_url"`
	// RequestTimeout is expressed in seconds. Zero leaves requests unbounded.
	RequestTimeout int    `mapstructure:"request_timeout" validate:"gte=0,lte=300"`
	UserAgent      string `mapstructure:"user_agent"`
}

type RecoveryConfiguration struct {
	ResendCooldown int `mapstructure:"resend_cooldown"  validate:"gte=1,lte=3600"`
	TickIntervalMS int `mapstructure:"tick_interval_ms" validate:"gte=1,lte=60000"`
}

// TickInterval is the period of one cooldown tick.
func (c RecoveryConfiguration) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// PasswordPolicyConfiguration must match the policy enforced by the identity service.
type PasswordPolicyConfiguration struct {
	// MinLength and MaxLength count characters, not bytes.
	MinLength     int  `mapstructure:"min_length"     validate:"gte=1,ltefield=MaxLength"`
	MaxLength     int  `mapstructure:"max_length"     validate:"gte=1,lte=1024"`
	RequireUpper  bool `mapstructure:"require_upper"`
	RequireLower  bool `mapstructure:"require_lower"`
	RequireDigit  bool `mapstructure:"require_digit"`
	RequireSymbol bool `mapstructure:"require_symbol"`
}

type StubConfiguration struct {
	Port           int                 `mapstructure:"port"            validate:"gte=80,lte=65535"`
	JWTSecret      string              `mapstructure:"jwt_secret"`
	OTPPeriod      int                 `mapstructure:"otp_period"      validate:"gte=30,lte=3600"`
	MaxAttempts    int                 `mapstructure:"max_attempts"    validate:"gte=1,lte=20"`
	TokenExpiry    int                 `mapstructure:"token_expiry"    validate:"gte=1,lte=1440"`
	AllowedOrigins []string            `mapstructure:"allowed_origins"`
	AdminEmail     string              `mapstructure:"admin_email"     validate:"omitempty,email"`
	AdminPassword  string              `mapstructure:"admin_password"`
	Mailer         MailerConfiguration `mapstructure:"mailer"`
	Cache          CacheConfiguration  `mapstructure:"cache"`
	// ResetRequestsPerMinute limits forgot-password requests per email. Zero disables the limit.
	ResetRequestsPerMinute int `mapstructure:"reset_requests_per_minute" validate:"gte=0,lte=600"`
	// CleanupInterval is the janitor period in seconds.
	CleanupInterval int `mapstructure:"cleanup_interval" validate:"gte=1,lte=86400"`
	// ActivityDirectory holds the audit index. Empty keeps the index in memory.
	ActivityDirectory string `mapstructure:"activity_dir"`
}

type CacheConfiguration struct {
	Type          string   `mapstructure:"type"            validate:"omitempty,oneof=memory redis"`
	Hosts         []string `mapstructure:"hosts"           validate:"required_if=Type redis"`
	Password      string   `mapstructure:"password"`
	TLSEnabled    bool     `mapstructure:"tls_enabled"`
	TLSServerName string   `mapstructure:"tls_server_name"`
}

// MailerConfiguration selects how the stub delivers reset codes besides echoing them.
type MailerConfiguration struct {
	Type      string            `mapstructure:"type"      validate:"omitempty,oneof=filesystem smtp"`
	Directory string            `mapstructure:"directory" validate:"required_if=Type filesystem"`
	SMTP      SMTPConfiguration `mapstructure:"smtp"`
}

type SMTPConfiguration struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"     validate:"omitempty,gte=1,lte=65535"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"   validate:"omitempty,email"`
	SkipTLS  bool   `mapstructure:"skip_tls"`
}

// TelemetryConfiguration enables an OTLP/HTTP trace exporter for the instrumented
// identity service calls.
type TelemetryConfiguration struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"     validate:"required_if=Enabled true,omitempty,http_url"`
	ServiceName string `mapstructure:"service_name"`
}
