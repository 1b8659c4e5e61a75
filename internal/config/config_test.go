package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(values map[string]string) (EnvLookup, func() []string) {
	lookup := func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
	environ := func() []string {
		var out []string
		for k, v := range values {
			out = append(out, k+"="+v)
		}
		return out
	}
	return lookup, environ
}

func TestLoadDefaults(t *testing.T) {
	lookup, environ := mapEnv(nil)
	cfg, meta, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DefaultStoreDir, cfg.DBPath)
	assert.Equal(t, "ksuid", cfg.IDStrategy)
	assert.Equal(t, DefaultTelegramAPIBaseURL, cfg.TelegramAPIBaseURL)
	assert.True(t, cfg.StreamCache.Enabled)
	assert.Equal(t, DefaultStreamCacheTTL, cfg.StreamCache.TTL)
	assert.Equal(t, DefaultStreamCacheEntries, cfg.StreamCache.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.ApprovalTimeout)
	assert.Equal(t, 10*time.Second, cfg.DrainTimeout)
	assert.Empty(t, cfg.Providers)
	assert.Equal(t, SourceDefault, meta.Source("port"))
}

func TestLoadEnvValues(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"PORT":                             "9090",
		"CORS_ORIGIN":                      "https://app.example.com",
		"OPTIMAIZER_DB_PATH":               "/var/lib/optimaizer",
		"TELEGRAM_API_BASE_URL":            "https://tg.proxy.local/",
		"WHISPER_MODEL":                    "large-v3",
		"OPTIMAIZER_ID_STRATEGY":           "UUIDv7",
		"STREAM_CACHE_ENABLED":             "false",
		"STREAM_CACHE_TTL_MS":              "1500",
		"STREAM_CACHE_MAX_ENTRIES":         "32",
		"AGENT_CREDENTIALS_ENCRYPTION_KEY": "super-secret",
	})

	cfg, meta, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://app.example.com", cfg.CORSOrigin)
	assert.Equal(t, "/var/lib/optimaizer", cfg.DBPath)
	assert.Equal(t, "https://tg.proxy.local", cfg.TelegramAPIBaseURL, "trailing slash trimmed")
	assert.Equal(t, "large-v3", cfg.WhisperModel)
	assert.Equal(t, "uuidv7", cfg.IDStrategy, "strategy lowercased")
	assert.False(t, cfg.StreamCache.Enabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.StreamCache.TTL)
	assert.Equal(t, 32, cfg.StreamCache.MaxEntries)
	assert.Equal(t, "super-secret", cfg.CredentialsKey)
	assert.Equal(t, SourceEnv, meta.Source("port"))
}

func TestLoadBudgetValues(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"MONTHLY_BUDGET_USD":    "25.50",
		"PROMPT_USD_PER_1K":     "0.003",
		"COMPLETION_USD_PER_1K": "0.015",
	})

	cfg, meta, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	assert.Equal(t, 25.50, cfg.Budget.MonthlyLimitUSD)
	assert.Equal(t, 0.003, cfg.Budget.PromptUSDPer1K)
	assert.Equal(t, 0.015, cfg.Budget.CompletionUSDPer1K)
	assert.Equal(t, SourceEnv, meta.Source("monthly_budget_usd"))
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{"PORT": "not-a-port"},
		{"PORT": "70000"},
		{"OPTIMAIZER_ID_STRATEGY": "snowflake"},
		{"STREAM_CACHE_ENABLED": "perhaps"},
		{"STREAM_CACHE_TTL_MS": "-5"},
		{"METRICS_PORT": "0"},
		{"MONTHLY_BUDGET_USD": "-3"},
		{"PROMPT_USD_PER_1K": "free"},
	}
	for _, env := range cases {
		lookup, environ := mapEnv(env)
		_, _, err := Load(WithEnv(lookup), WithEnviron(environ))
		require.Error(t, err, "%v", env)
	}
}

func TestLoadAliases(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"OPTIMAIZER_PORT": "8123",
		"NODE_ENV":        "production",
	})

	cfg, _, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadDotEnvFile(t *testing.T) {
	envFile := `
# runtime settings
PORT=9001
export OPENAI_API_KEY="sk-from-dotenv"
TELEGRAM_BOT_NAME='assistant'
`
	lookup, environ := mapEnv(map[string]string{
		"OPTIMAIZER_ENV_PATH": "/etc/optimaizer/.env",
		// Already set on the process: must win over the file.
		"PORT": "9002",
	})

	cfg, meta, err := Load(
		WithEnv(lookup),
		WithEnviron(environ),
		WithFileReader(func(path string) ([]byte, error) {
			require.Equal(t, "/etc/optimaizer/.env", path)
			return []byte(envFile), nil
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Port, "process env beats .env")
	key, ok := cfg.ActiveKey("openai")
	require.True(t, ok)
	assert.Equal(t, "sk-from-dotenv", key.Key)
	assert.Equal(t, SourceDotEnv, meta.Source("openai_api_key"))
}

func TestLoadMissingDotEnvFileIgnored(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"OPTIMAIZER_ENV_PATH": "/nope/.env",
	})
	_, _, err := Load(
		WithEnv(lookup),
		WithEnviron(environ),
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
	)
	require.NoError(t, err)
}

func TestLoadEnvPathOverrideDirectsRead(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"OPTIMAIZER_ENV_PATH": "/ignored/.env",
	})
	path := "/explicit/.env"

	cfg, meta, err := Load(
		WithEnv(lookup),
		WithEnviron(environ),
		WithOverrides(Overrides{EnvPath: &path}),
		WithFileReader(func(got string) ([]byte, error) {
			require.Equal(t, path, got)
			return []byte("PORT=9005"), nil
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, 9005, cfg.Port)
	assert.Equal(t, path, cfg.EnvPath)
	assert.Equal(t, SourceOverride, meta.Source("env_path"))
}

func TestLoadEnvPathOverrideMissingFileErrors(t *testing.T) {
	lookup, environ := mapEnv(nil)
	path := "/explicit/.env"

	_, _, err := Load(
		WithEnv(lookup),
		WithEnviron(environ),
		WithOverrides(Overrides{EnvPath: &path}),
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestParseDotEnv(t *testing.T) {
	values := ParseDotEnv([]byte("A=1\n#comment\n\nexport B=\"two\"\nC='three'\nBAD LINE\n=nokey\nA=override"))
	assert.Equal(t, "override", values["A"])
	assert.Equal(t, "two", values["B"])
	assert.Equal(t, "three", values["C"])
	assert.NotContains(t, values, "")
	assert.Len(t, values, 3)
}

func TestProviderKeyRings(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"OPENAI_API_KEYS":            `[{"id":"main","key":"sk-1"},{"id":"backup","key":"sk-2"}]`,
		"OPENAI_ACTIVE_API_KEY_ID":   "backup",
		"GEMINI_API_KEYS":            `["g-1","g-2"]`,
		"ANTHROPIC_API_KEY":          "sk-ant-legacy",
		"DEEPSEEK_ACTIVE_API_KEY_ID": "missing",
	})

	cfg, _, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	key, ok := cfg.ActiveKey("openai")
	require.True(t, ok)
	assert.Equal(t, "backup", key.ID)
	assert.Equal(t, "sk-2", key.Key)

	key, ok = cfg.ActiveKey("gemini")
	require.True(t, ok)
	assert.Equal(t, "key-1", key.ID)
	assert.Equal(t, "g-1", key.Key)

	key, ok = cfg.ActiveKey("anthropic")
	require.True(t, ok)
	assert.Equal(t, "default", key.ID)
	assert.Equal(t, "sk-ant-legacy", key.Key)

	// Ring with an active id but no keys yields nothing.
	_, ok = cfg.ActiveKey("deepseek")
	assert.False(t, ok)

	names := cfg.ProviderNames()
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "gemini")
	assert.Contains(t, names, "anthropic")
}

func TestProviderLegacyKeyDoesNotDuplicateRing(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEYS": `[{"id":"default","key":"sk-ring"}]`,
		"OPENAI_API_KEY":  "sk-legacy",
	}
	rings, err := resolveProviderKeys(env)
	require.NoError(t, err)

	ring := rings["openai"]
	require.Len(t, ring.Keys, 1)
	assert.Equal(t, "sk-ring", ring.Keys[0].Key, "ring entry wins over legacy single key")
}

func TestProviderBadRingRejected(t *testing.T) {
	env := map[string]string{"OPENAI_API_KEYS": `{"not":"an array"}`}
	_, err := resolveProviderKeys(env)
	require.Error(t, err)
}

func TestOverridesWin(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{"PORT": "9002"})
	port := 7000
	level := "debug"
	cfg, meta, err := Load(
		WithEnv(lookup),
		WithEnviron(environ),
		WithOverrides(Overrides{Port: &port, LogLevel: &level}),
	)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, SourceOverride, meta.Source("port"))
}

func TestObservabilityEnvMapping(t *testing.T) {
	lookup, environ := mapEnv(map[string]string{
		"OPTIMAIZER_LOG_LEVEL": "debug",
		"METRICS_ENABLED":      "true",
		"METRICS_PORT":         "9465",
		"TRACING_ENABLED":      "true",
		"TRACING_EXPORTER":     "zipkin",
		"ZIPKIN_ENDPOINT":      "http://zipkin:9411/api/v2/spans",
	})

	cfg, _, err := Load(WithEnv(lookup), WithEnviron(environ))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, 9465, cfg.Observability.Metrics.PrometheusPort)
	assert.True(t, cfg.Observability.Tracing.Enabled)
	assert.Equal(t, "zipkin", cfg.Observability.Tracing.Exporter)
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", cfg.Observability.Tracing.ZipkinEndpoint)
}
