package configuration

import (
	"fmt"
	"os"
	"strings"

	"authflow/internal/models"
	"authflow/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

func parseArrayFields(k *koanf.Koanf) {
	for _, field := range ArrayConfigFields {
		if stringVal := k.String(field); stringVal != "" {
			stringVal = strings.Trim(stringVal, "[]")
			var items []string
			if strings.Contains(stringVal, ",") {
				items = strings.Split(stringVal, ",")
			} else {
				items = strings.Fields(stringVal)
			}
			for i, item := range items {
				items[i] = strings.TrimSpace(item)
			}
			err := k.Set(field, items)
			if err != nil {
				zap.L().
					Error("Error parsing array field", zap.String("field", field), zap.Error(err))
			}
		}
	}
}

func readEnvVars(k *koanf.Koanf) {
	err := k.Load(env.Provider("", ".", func(s string) string {
		s = strings.ToLower(s)
		segments := strings.Split(s, "__")
		result := strings.Join(segments, ".")
		return result
	}), nil)
	if err != nil {
		zap.L().Warn("Error loading environment variables", zap.Error(err))
	}

	parseArrayFields(k)
}

// resolveConfigFile returns the explicit path, then CONFIG_FILE_PATH, then the first
// existing search path. An empty result means no file.
func resolveConfigFile(path string) string {
	if path != "" {
		return path
	}
	if configFilePath := os.Getenv("CONFIG_FILE_PATH"); configFilePath != "" {
		return configFilePath
	}
	for _, candidate := range ConfigFileSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func readFileConfig(k *koanf.Koanf, path string) error {
	filePath := resolveConfigFile(path)
	if filePath == "" {
		zap.L().Warn("No configuration file found")
		return nil
	}

	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", filePath, err)
	}
	zap.L().Info("Read configuration from file " + filePath)
	return nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]interface{}{
		"app.profile":   ProfileClient,
		"app.log_level": "info",

		"identity.api_url":         "http://localhost:8080/api",
		"identity.request_timeout": 0,

		"recovery.resend_cooldown":  DefaultResendCooldown,
		"recovery.tick_interval_ms": DefaultTickIntervalMS,

		"password_policy.min_length":     8,
		"password_policy.max_length":     validation.DefaultMaxPasswordLength,
		"password_policy.require_upper":  false,
		"password_policy.require_lower":  false,
		"password_policy.require_digit":  false,
		"password_policy.require_symbol": false,

		"stub.port":         8080,
		"stub.otp_period":   300,
		"stub.max_attempts": 5,
		"stub.token_expiry": 60,

		"stub.cache.type":                CacheMemory,
		"stub.reset_requests_per_minute": 5,
		"stub.cleanup_interval":          60,

		"telemetry.enabled":      false,
		"telemetry.service_name": AppName,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

func setIfMissing(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		_ = k.Set(key, value)
	}
}

func loadConditionalDefaults(k *koanf.Koanf) {
	if k.String("app.profile") == ProfileStub {
		setIfMissing(k, "stub.allowed_origins", []string{"http://localhost:5173"})
	}
}

// Load reads defaults, then the YAML file at path (or the discovered one), then
// environment variables such as IDENTITY__API_URL, and validates the result.
func Load(path string) (models.Configuration, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return models.Configuration{}, fmt.Errorf("failed to load default configuration: %w", err)
	}
	if err := readFileConfig(k, path); err != nil {
		return models.Configuration{}, err
	}
	readEnvVars(k)
	loadConditionalDefaults(k)

	var config models.Configuration
	err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "mapstructure"})
	if err != nil {
		return models.Configuration{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	validate := validator.New()
	if err = validate.Struct(config); err != nil {
		return models.Configuration{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if config.App.Profile == ProfileStub && config.Stub.JWTSecret == "" {
		return models.Configuration{}, fmt.Errorf("invalid configuration: stub.jwt_secret is required for the %s profile", ProfileStub)
	}

	return config, nil
}

func Read() models.Configuration {
	config, err := Load("")
	if err != nil {
		zap.L().Fatal("Unable to read configuration", zap.Error(err))
	}
	return config
}
