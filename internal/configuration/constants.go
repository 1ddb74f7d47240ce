package configuration

const AppName = "authflow"

// Identity service endpoints, relative to identity.api_url.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathLogout         = "/auth/logout"
	PathMe             = "/auth/me"
	PathForgotPassword = "/auth/forgot-password"
	PathVerifyOTP      = "/auth/verify-otp"
	PathResetPassword  = "/auth/reset-password"
)

const (
	// DefaultResendCooldown is the number of ticks before a new code may be requested.
	DefaultResendCooldown = 60
	// DefaultTickIntervalMS is the cooldown tick period.
	DefaultTickIntervalMS = 1000
)

// Flow event topics.
const (
	EventsRecovery = "recovery_events"
	EventsSession  = "session_events"
)

// Stub mailer types.
const (
	MailerFilesystem = "filesystem"
	MailerSMTP       = "smtp"
)

// Stub cache types and keys.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"

	CacheRevokedTokenKey = "authflow:revoked:%s"
	CacheRateLimitKey    = "authflow:ratelimit:%s"
)

var ArrayConfigFields = []string{
	"stub.allowed_origins",
	"stub.cache.hosts",
}

var ConfigFileSearchPaths = []string{
	"./config.yaml",
	"templates/config.yaml",
}
