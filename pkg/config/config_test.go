package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/go-go-golems/threadchat/pkg/inference"
	"github.com/go-go-golems/threadchat/pkg/persistence/threadstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears every variable that could leak in from the developer's shell.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"GROQ_API_KEY", "THREADCHAT_API_KEY", "THREADCHAT_INFERENCE_API_KEY", "THREADCHAT_INFERENCE_PROVIDER", "THREADCHAT_STORE_BACKEND"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_MissingCredentialIsConfigError(t *testing.T) {
	isolate(t)
	_, err := Load(NewViper())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "inference.api-key", cfgErr.Key)
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	s, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "gsk-test", s.Inference.APIKey)
	assert.Equal(t, inference.DefaultModel, s.Inference.Model)
	assert.Equal(t, inference.DefaultBaseURL, s.Inference.BaseURL)
	assert.Equal(t, 60*time.Second, s.Inference.Timeout)
	assert.Equal(t, threadstore.BackendSQLite, s.Store.Backend)
	assert.Equal(t, threadstore.DefaultSQLitePath, s.Store.SQLitePath)
	assert.Equal(t, ":8080", s.Server.Addr)
}

func TestLoad_PrefixedEnvironmentWins(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", "from-groq")
	t.Setenv("THREADCHAT_INFERENCE_API_KEY", "from-prefix")
	t.Setenv("THREADCHAT_STORE_BACKEND", "memory")

	s, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "from-prefix", s.Inference.APIKey)
	assert.Equal(t, threadstore.BackendMemory, s.Store.Backend)
}

func TestLoad_EchoProviderNeedsNoKey(t *testing.T) {
	isolate(t)
	t.Setenv("THREADCHAT_INFERENCE_PROVIDER", "echo")

	s, err := Load(NewViper())
	require.NoError(t, err)

	c, err := s.NewClient()
	require.NoError(t, err)
	reply, err := c.Complete(context.Background(), conversation.History{conversation.NewUserMessage("ping")})
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, reply.Role)
	assert.Contains(t, reply.Content, "ping")
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
inference:
  provider: echo
  timeout: 5s
  system-prompt: Be brief.
store:
  backend: memory
events:
  backend: none
`), 0o600))

	v := NewViper()
	v.SetConfigFile(path)
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ProviderEcho, s.Inference.Provider)
	assert.Equal(t, 5*time.Second, s.Inference.Timeout)
	assert.Equal(t, "Be brief.", s.Inference.SystemPrompt)
	assert.Equal(t, threadstore.BackendMemory, s.Store.Backend)
}

func TestLoad_BrokenConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inference: [unterminated"), 0o600))

	v := NewViper()
	v.SetConfigFile(path)
	_, err := Load(v)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestValidate(t *testing.T) {
	base := func() Settings {
		return Settings{
			Inference: InferenceSettings{Provider: ProviderOpenAI, APIKey: "k", Model: "m"},
			Store:     threadstore.Settings{Backend: threadstore.BackendSQLite},
		}
	}

	s := base()
	require.NoError(t, s.Validate())

	s = base()
	s.Inference.Provider = "carrier-pigeon"
	assert.Error(t, s.Validate())

	s = base()
	s.Store.Backend = "floppy"
	assert.Error(t, s.Validate())

	s = base()
	s.Store.Backend = threadstore.BackendRedis
	assert.Error(t, s.Validate())

	s = base()
	s.Events.Backend = "kafka"
	assert.Error(t, s.Validate())

	s = base()
	s.Inference.Temperature = 3
	assert.Error(t, s.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	const key = "THREADCHAT_TEST_DOTENV_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	_ = os.Unsetenv(key)

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	t.Setenv(key, "from-shell")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-shell", os.Getenv(key))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoad_WithoutCredential(t *testing.T) {
	isolate(t)
	s, err := Load(NewViper(), WithoutCredential())
	require.NoError(t, err)
	assert.Empty(t, s.Inference.APIKey)

	_, err = s.NewClient()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}
