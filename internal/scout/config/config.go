package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/version"
)

// AppConfig holds the environment-driven defaults for scan sessions. CLI
// flags override these per invocation.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// TimeoutMs bounds each DNS exchange.
	TimeoutMs int `koanf:"timeout_ms" validate:"required,gte=1"`

	// Concurrency is the default worker count.
	Concurrency int `koanf:"concurrency" validate:"required,gte=1"`

	// Retries is the default retry count for retryable errors.
	Retries int `koanf:"retries" validate:"gte=0"`

	// RetryBackoffMs is the base backoff before the first retry.
	RetryBackoffMs int `koanf:"retry_backoff_ms" validate:"gte=0"`

	// WildcardProbes is the default random-probe count per wildcard zone.
	WildcardProbes int `koanf:"wildcard_probes" validate:"gte=2"`

	// HTTPTimeoutMs bounds takeover and wildcard-suppression HTTP probes.
	HTTPTimeoutMs int `koanf:"http_timeout_ms" validate:"required,gte=1"`

	// Resolvers pins upstream nameservers; empty uses the system resolver.
	Resolvers []string `koanf:"resolvers" validate:"dive,nameserver"`

	// CacheSize bounds the pinned client's answer cache.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// UserAgent is sent on HTTP probes (takeover, wildcard, CT).
	UserAgent string `koanf:"user_agent" validate:"required"`

	// CTCachePath is the bbolt file for CT fetch caching; empty disables it.
	CTCachePath string `koanf:"ct_cache_path"`
}

// DEFAULT_APP_CONFIG is the baseline configuration before environment
// overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "warn",
	TimeoutMs:      2000,
	Concurrency:    20,
	Retries:        0,
	RetryBackoffMs: 200,
	WildcardProbes: 3,
	HTTPTimeoutMs:  5000,
	Resolvers:      nil,
	CacheSize:      4096,
	UserAgent:      "sdscout/" + version.Version,
	CTCachePath:    "",
}

// validNameserver accepts the same nameserver forms the scan flags accept:
// bare IP, ip:port, and bracketed IPv6 with port.
func validNameserver(fl validator.FieldLevel) bool {
	_, err := domain.ParseNameserver(fl.Field().String())
	return err == nil
}

// envLoader loads environment variables with the prefix "SDSCOUT_",
// lowercasing keys and splitting list values on spaces or commas. Mockable
// in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SDSCOUT_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "SDSCOUT_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("nameserver", validNameserver)
}

// Load parses environment variables over the defaults and validates the
// result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
