package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "THREADCHAT"

	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

// Inference settings. Timeout and retries are applied by the caller surfaces,
// never inside the conversation runner.
type InferenceSettings struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api-key"`
	BaseURL      string        `mapstructure:"base-url"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max-tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      uint          `mapstructure:"retries"`
	RetryDelay   time.Duration `mapstructure:"retry-delay"`
	SystemPrompt string        `mapstructure:"system-prompt"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

type Settings struct {
	Inference InferenceSettings    `mapstructure:"inference"`
	Store     threadstore.Settings `mapstructure:"store"`
	Events    events.Settings      `mapstructure:"events"`
	Server    ServerSettings       `mapstructure:"server"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("inference.provider", ProviderOpenAI)
	v.SetDefault("inference.api-key", "")
	v.SetDefault("inference.base-url", inference.DefaultBaseURL)
	v.SetDefault("inference.model", inference.DefaultModel)
	v.SetDefault("inference.temperature", 0.0)
	v.SetDefault("inference.max-tokens", 0)
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("inference.retries", 1)
	v.SetDefault("inference.retry-delay", 500*time.Millisecond)
	v.SetDefault("inference.system-prompt", "")

	v.SetDefault("store.backend", threadstore.BackendSQLite)
	v.SetDefault("store.sqlite-path", threadstore.DefaultSQLitePath)
	v.SetDefault("store.sqlite-dsn", "")
	v.SetDefault("store.redis-addr", "localhost:6379")
	v.SetDefault("store.redis-prefix", threadstore.DefaultRedisPrefix)

	v.SetDefault("events.backend", events.BackendGoChannel)
	v.SetDefault("events.topic", events.DefaultTopic)
	v.SetDefault("events.redis-addr", "localhost:6379")
	v.SetDefault("events.redis-group", "")
	v.SetDefault("events.redis-consumer", "")

	v.SetDefault("server.addr", ":8080")
}

// NewViper returns a viper instance wired to the THREADCHAT_ environment and
// the optional config.yaml search path.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".threadchat"))
	}
	v.AddConfigPath(".")
	return v
}

// LoadDotEnv merges a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return &ConfigError{Key: "dotenv", Reason: "cannot stat " + p, Err: err}
		}
		if err := godotenv.Load(p); err != nil {
			return &ConfigError{Key: "dotenv", Reason: "cannot parse " + p, Err: err}
		}
		log.Debug().Str("path", p).Msg("loaded environment file")
	}
	return nil
}

type loadOptions struct {
	skipCredential bool
}

type LoadOption func(*loadOptions)

// WithoutCredential lets read-only commands start without an API key.
func WithoutCredential() LoadOption {
	return func(o *loadOptions) { o.skipCredential = true }
}

// Load reads the config file (if any), unmarshals and validates.
func Load(v *viper.Viper, opts ...LoadOption) (*Settings, error) {
	lo := loadOptions{}
	for _, o := range opts {
		o(&lo)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{Key: "config", Reason: "cannot read config file", Err: err}
		}
	} else {
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, &ConfigError{Key: "config", Reason: "cannot decode settings", Err: err}
	}
	if s.Inference.APIKey == "" {
		s.Inference.APIKey = lookupAPIKey()
	}
	if err := s.validate(!lo.skipCredential); err != nil {
		return nil, err
	}
	return &s, nil
}

// lookupAPIKey falls back to the provider's own variable name.
func lookupAPIKey() string {
	for _, k := range []string{EnvPrefix + "_API_KEY", "GROQ_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (s *Settings) Validate() error {
	return s.validate(true)
}

func (s *Settings) validate(requireCredential bool) error {
	switch strings.ToLower(s.Inference.Provider) {
	case ProviderOpenAI:
		if requireCredential && strings.TrimSpace(s.Inference.APIKey) == "" {
			return &ConfigError{Key: "inference.api-key", Reason: "missing credential, set GROQ_API_KEY or " + EnvPrefix + "_API_KEY"}
		}
		if s.Inference.Model == "" {
			return &ConfigError{Key: "inference.model", Reason: "must not be empty"}
		}
	case ProviderEcho:
	default:
		return &ConfigError{Key: "inference.provider", Reason: "unknown provider " + s.Inference.Provider}
	}
	if s.Inference.Timeout < 0 {
		return &ConfigError{Key: "inference.timeout", Reason: "must not be negative"}
	}
	if s.Inference.Temperature < 0 || s.Inference.Temperature > 2 {
		return &ConfigError{Key: "inference.temperature", Reason: "must be within [0, 2]"}
	}

	switch strings.ToLower(s.Store.Backend) {
	case threadstore.BackendSQLite, threadstore.BackendMemory:
	case threadstore.BackendRedis:
		if s.Store.RedisAddr == "" {
			return &ConfigError{Key: "store.redis-addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigError{Key: "store.backend", Reason: "unknown backend " + s.Store.Backend}
	}

	switch strings.ToLower(s.Events.Backend) {
	case "", events.BackendNone, events.BackendGoChannel:
	case events.BackendRedis:
		if s.Events.RedisAddr == "" {
			return &ConfigError{Key: "events.redis-addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigError{Key: "events.backend", Reason: "unknown backend " + s.Events.Backend}
	}
	return nil
}

// NewClient builds the configured inference client with the caller-side
// timeout and retry decorators applied.
func (s *Settings) NewClient() (inference.Client, error) {
	var c inference.Client
	switch strings.ToLower(s.Inference.Provider) {
	case ProviderEcho:
		c = inference.NewEchoClient()
	default:
		oaSettings := inference.OpenAISettings{
			APIKey:    s.Inference.APIKey,
			BaseURL:   s.Inference.BaseURL,
			Model:     s.Inference.Model,
			MaxTokens: s.Inference.MaxTokens,
		}
		if s.Inference.Temperature > 0 {
			t := float32(s.Inference.Temperature)
			oaSettings.Temperature = &t
		}
		oc, err := inference.NewOpenAIClient(oaSettings)
		if err != nil {
			return nil, &ConfigError{Key: "inference", Reason: "cannot build client", Err: err}
		}
		c = oc
	}
	c = inference.WithTimeout(c, s.Inference.Timeout)
	c = inference.WithRetry(c, inference.RetrySettings{
		Attempts:  s.Inference.Retries,
		BaseDelay: s.Inference.RetryDelay,
	})
	return c, nil
}
