package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-oidc-connector/idp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	defaultEnvFile    = ".env"
	defaultConfigFile = "config.yml"
)

type Config interface {
	EnvConfig
	OIDCConfig
	StorageConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetLogFormat() string
	GetHousekeepingInterval() time.Duration
}

type OIDCConfig interface {
	GetProviderConfig(ctx context.Context) (idp.ProviderConfig, error)
	GetSkipSignatureVerification() bool
	GetPreventAccountCreation() bool
	GetLinkExistingAccounts() bool
}

type mainConfig struct {
	v       *viper.Viper
	secrets SecretResolver
}

var _ Config = (*mainConfig)(nil)

type loadOptions struct {
	envFile    string
	configFile string
	secrets    SecretResolver
}

// Option customises Load.
type Option func(*loadOptions)

// WithEnvFile loads path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithConfigFile reads path instead of ./config.yml. An explicit file must exist.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithSecretResolver sets where oidc.clientsecretarn is resolved.
func WithSecretResolver(r SecretResolver) Option {
	return func(o *loadOptions) { o.secrets = r }
}

// Load builds the settings store. Values come from, in order of precedence,
// the process environment, the .env file and config.yml. Nested keys map to
// environment variables by upper-casing and replacing dots with underscores,
// so oidc.clientid is read from OIDC_CLIENTID.
func Load(options ...Option) (Config, error) {
	var opts loadOptions
	for _, opt := range options {
		opt(&opts)
	}

	envFile := opts.envFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if fileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if opts.envFile != "" {
		return nil, fmt.Errorf("env file %s not found", envFile)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	configFile := opts.configFile
	if configFile == "" && fileExists(defaultConfigFile) {
		configFile = defaultConfigFile
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", configFile, err)
		}
		log.Info().Str("file", configFile).Msg("loaded config file")
	}

	return &mainConfig{v: v, secrets: opts.secrets}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, "8080")
	v.SetDefault(keyAppName, "Go OIDC Connector")
	v.SetDefault(keyBaseURL, "http://localhost:8080")
	v.SetDefault(keyEnv, "DEV")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")
	v.SetDefault(keyHousekeepingInterval, "5m")

	v.SetDefault(keyScope, idp.DefaultScope)

	v.SetDefault(keyStorageDriver, StorageDriverMemory)
	v.SetDefault(keyRedisPrefix, "oidc")
	v.SetDefault(keyAMQPExchange, "oidc.audit")

	v.SetDefault(keyStateTTL, "5m")
	v.SetDefault(keySessionMaxAge, "8h")
	v.SetDefault(keySessionCookieName, "oidc_session")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
