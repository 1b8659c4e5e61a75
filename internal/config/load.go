package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
)

// Defaults applied before any file or environment value.
const (
	DefaultPort               = 8080
	DefaultCORSOrigin         = "*"
	DefaultTelegramAPIBaseURL = "https://api.telegram.org"
	DefaultStoreDir           = "~/.optimaizer/store"
	DefaultStreamCacheTTL     = 60 * time.Second
	DefaultStreamCacheEntries = 256
	DefaultApprovalTimeout    = 30 * time.Second
	DefaultDrainTimeout       = 10 * time.Second
)

// StreamCacheConfig controls the streaming response cache.
type StreamCacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// BudgetConfig caps monthly model spend per user. A zero limit disables
// enforcement; the per-1K rates price tokens for cost projection.
type BudgetConfig struct {
	MonthlyLimitUSD    float64
	PromptUSDPer1K     float64
	CompletionUSDPer1K float64
}

// RuntimeConfig captures every operator-tunable setting of the runtime.
type RuntimeConfig struct {
	Port        int
	CORSOrigin  string
	Environment string

	// DBPath roots the file-backed keyed store. Empty means in-memory.
	DBPath string
	// EnvPath points at an optional .env file loaded under the process env.
	EnvPath string

	// IDStrategy selects the identifier algorithm: "ksuid" or "uuidv7".
	IDStrategy string

	TelegramAPIBaseURL string
	WhisperAPIURL      string
	// WhisperModel overrides the model field sent with transcription
	// uploads; empty keeps the client default.
	WhisperModel    string
	OllamaBaseURL   string
	LMStudioBaseURL string

	StreamCache StreamCacheConfig
	Budget      BudgetConfig

	// CredentialsKey seals agent web credentials at rest. Empty disables
	// sealing; agents whose stored credentials are envelopes then refuse to
	// start.
	CredentialsKey string

	ApprovalTimeout time.Duration
	DrainTimeout    time.Duration

	Providers map[string]KeyRing

	Observability observability.Config
}

// Overrides conveys caller-specified values that win over env sources.
type Overrides struct {
	Port        *int
	CORSOrigin  *string
	Environment *string
	DBPath      *string
	EnvPath     *string
	LogLevel    *string
	LogFormat   *string
}

// Load constructs the runtime configuration by merging defaults, the .env
// file named by OPTIMAIZER_ENV_PATH, the process environment and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		environ:   os.Environ,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	cfg := RuntimeConfig{
		Port:               DefaultPort,
		CORSOrigin:         DefaultCORSOrigin,
		Environment:        "development",
		DBPath:             DefaultStoreDir,
		IDStrategy:         "ksuid",
		TelegramAPIBaseURL: DefaultTelegramAPIBaseURL,
		StreamCache: StreamCacheConfig{
			Enabled:    true,
			TTL:        DefaultStreamCacheTTL,
			MaxEntries: DefaultStreamCacheEntries,
		},
		ApprovalTimeout: DefaultApprovalTimeout,
		DrainTimeout:    DefaultDrainTimeout,
		Observability:   observability.DefaultConfig(),
	}

	lookup := AliasEnvLookup(options.envLookup, DefaultEnvAliases())
	envSnapshot := snapshotEnviron(options.environ())

	// The .env file sits under the process environment: set variables win.
	// An explicit override names the file directly and must exist; the env
	// variable path tolerates a missing file.
	envPath, envPathRequired := "", false
	if options.overrides.EnvPath != nil {
		envPath = *options.overrides.EnvPath
		envPathRequired = true
		meta.sources["env_path"] = SourceOverride
	} else if value, ok := lookup("OPTIMAIZER_ENV_PATH"); ok {
		envPath = value
		meta.sources["env_path"] = SourceEnv
	}
	if envPath != "" {
		cfg.EnvPath = envPath
		data, err := options.readFile(envPath)
		switch {
		case err == nil:
			fileValues := ParseDotEnv(data)
			lookup = dotEnvLookup(fileValues, lookup)
			for key, value := range fileValues {
				if _, exists := envSnapshot[key]; !exists && value != "" {
					envSnapshot[key] = value
					meta.sources[strings.ToLower(key)] = SourceDotEnv
				}
			}
		case errors.Is(err, os.ErrNotExist) && !envPathRequired:
			// Optional file.
		default:
			return RuntimeConfig{}, Metadata{}, fmt.Errorf("read env file %s: %w", envPath, err)
		}
	}

	if err := applyEnv(&cfg, &meta, lookup); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}

	rings, err := resolveProviderKeys(envSnapshot)
	if err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	cfg.Providers = rings

	applyOverrides(&cfg, &meta, options.overrides)

	return cfg, meta, nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, lookup EnvLookup) error {
	if value, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", value)
		}
		cfg.Port = port
		meta.sources["port"] = SourceEnv
	}
	if value, ok := lookup("CORS_ORIGIN"); ok {
		cfg.CORSOrigin = value
		meta.sources["cors_origin"] = SourceEnv
	}
	if value, ok := lookup("OPTIMAIZER_ENV"); ok {
		cfg.Environment = value
		meta.sources["environment"] = SourceEnv
	}
	if value, ok := lookup("OPTIMAIZER_DB_PATH"); ok {
		cfg.DBPath = value
		meta.sources["db_path"] = SourceEnv
	}
	if value, ok := lookup("OPTIMAIZER_ID_STRATEGY"); ok {
		value = strings.ToLower(value)
		if value != "ksuid" && value != "uuidv7" {
			return fmt.Errorf("invalid OPTIMAIZER_ID_STRATEGY %q, want ksuid or uuidv7", value)
		}
		cfg.IDStrategy = value
		meta.sources["id_strategy"] = SourceEnv
	}
	if value, ok := lookup("TELEGRAM_API_BASE_URL"); ok {
		cfg.TelegramAPIBaseURL = strings.TrimRight(value, "/")
		meta.sources["telegram_api_base_url"] = SourceEnv
	}
	if value, ok := lookup("WHISPER_API_URL"); ok {
		cfg.WhisperAPIURL = value
		meta.sources["whisper_api_url"] = SourceEnv
	}
	if value, ok := lookup("WHISPER_MODEL"); ok {
		cfg.WhisperModel = value
		meta.sources["whisper_model"] = SourceEnv
	}
	if value, ok := lookup("OLLAMA_BASE_URL"); ok {
		cfg.OllamaBaseURL = strings.TrimRight(value, "/")
		meta.sources["ollama_base_url"] = SourceEnv
	}
	if value, ok := lookup("LMSTUDIO_BASE_URL"); ok {
		cfg.LMStudioBaseURL = strings.TrimRight(value, "/")
		meta.sources["lmstudio_base_url"] = SourceEnv
	}
	if value, ok := lookup("AGENT_CREDENTIALS_ENCRYPTION_KEY"); ok {
		cfg.CredentialsKey = value
		meta.sources["credentials_key"] = SourceEnv
	}

	if value, ok := lookup("STREAM_CACHE_ENABLED"); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid STREAM_CACHE_ENABLED %q", value)
		}
		cfg.StreamCache.Enabled = enabled
		meta.sources["stream_cache_enabled"] = SourceEnv
	}
	if value, ok := lookup("STREAM_CACHE_TTL_MS"); ok {
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid STREAM_CACHE_TTL_MS %q", value)
		}
		cfg.StreamCache.TTL = time.Duration(ms) * time.Millisecond
		meta.sources["stream_cache_ttl"] = SourceEnv
	}
	if value, ok := lookup("STREAM_CACHE_MAX_ENTRIES"); ok {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid STREAM_CACHE_MAX_ENTRIES %q", value)
		}
		cfg.StreamCache.MaxEntries = n
		meta.sources["stream_cache_max_entries"] = SourceEnv
	}

	if value, ok := lookup("MONTHLY_BUDGET_USD"); ok {
		usd, err := strconv.ParseFloat(value, 64)
		if err != nil || usd < 0 {
			return fmt.Errorf("invalid MONTHLY_BUDGET_USD %q", value)
		}
		cfg.Budget.MonthlyLimitUSD = usd
		meta.sources["monthly_budget_usd"] = SourceEnv
	}
	if value, ok := lookup("PROMPT_USD_PER_1K"); ok {
		usd, err := strconv.ParseFloat(value, 64)
		if err != nil || usd < 0 {
			return fmt.Errorf("invalid PROMPT_USD_PER_1K %q", value)
		}
		cfg.Budget.PromptUSDPer1K = usd
		meta.sources["prompt_usd_per_1k"] = SourceEnv
	}
	if value, ok := lookup("COMPLETION_USD_PER_1K"); ok {
		usd, err := strconv.ParseFloat(value, 64)
		if err != nil || usd < 0 {
			return fmt.Errorf("invalid COMPLETION_USD_PER_1K %q", value)
		}
		cfg.Budget.CompletionUSDPer1K = usd
		meta.sources["completion_usd_per_1k"] = SourceEnv
	}

	if value, ok := lookup("APPROVAL_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid APPROVAL_TIMEOUT_MS %q", value)
		}
		cfg.ApprovalTimeout = time.Duration(ms) * time.Millisecond
		meta.sources["approval_timeout"] = SourceEnv
	}
	if value, ok := lookup("AGENT_DRAIN_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid AGENT_DRAIN_TIMEOUT_MS %q", value)
		}
		cfg.DrainTimeout = time.Duration(ms) * time.Millisecond
		meta.sources["drain_timeout"] = SourceEnv
	}

	if value, ok := lookup("OPTIMAIZER_LOG_LEVEL"); ok {
		cfg.Observability.Logging.Level = value
		meta.sources["log_level"] = SourceEnv
	}
	if value, ok := lookup("OPTIMAIZER_LOG_FORMAT"); ok {
		cfg.Observability.Logging.Format = value
		meta.sources["log_format"] = SourceEnv
	}
	if value, ok := lookup("METRICS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q", value)
		}
		cfg.Observability.Metrics.Enabled = enabled
		meta.sources["metrics_enabled"] = SourceEnv
	}
	if value, ok := lookup("METRICS_PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid METRICS_PORT %q", value)
		}
		cfg.Observability.Metrics.PrometheusPort = port
		meta.sources["metrics_port"] = SourceEnv
	}
	if value, ok := lookup("TRACING_ENABLED"); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid TRACING_ENABLED %q", value)
		}
		cfg.Observability.Tracing.Enabled = enabled
		meta.sources["tracing_enabled"] = SourceEnv
	}
	if value, ok := lookup("TRACING_EXPORTER"); ok {
		cfg.Observability.Tracing.Exporter = value
		meta.sources["tracing_exporter"] = SourceEnv
	}
	if value, ok := lookup("OTLP_ENDPOINT"); ok {
		cfg.Observability.Tracing.OTLPEndpoint = value
		meta.sources["otlp_endpoint"] = SourceEnv
	}
	if value, ok := lookup("ZIPKIN_ENDPOINT"); ok {
		cfg.Observability.Tracing.ZipkinEndpoint = value
		meta.sources["zipkin_endpoint"] = SourceEnv
	}

	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	if overrides.Port != nil {
		cfg.Port = *overrides.Port
		meta.sources["port"] = SourceOverride
	}
	if overrides.CORSOrigin != nil {
		cfg.CORSOrigin = *overrides.CORSOrigin
		meta.sources["cors_origin"] = SourceOverride
	}
	if overrides.Environment != nil {
		cfg.Environment = *overrides.Environment
		meta.sources["environment"] = SourceOverride
	}
	if overrides.DBPath != nil {
		cfg.DBPath = *overrides.DBPath
		meta.sources["db_path"] = SourceOverride
	}
	if overrides.EnvPath != nil {
		cfg.EnvPath = *overrides.EnvPath
		meta.sources["env_path"] = SourceOverride
	}
	if overrides.LogLevel != nil {
		cfg.Observability.Logging.Level = *overrides.LogLevel
		meta.sources["log_level"] = SourceOverride
	}
	if overrides.LogFormat != nil {
		cfg.Observability.Logging.Format = *overrides.LogFormat
		meta.sources["log_format"] = SourceOverride
	}
}
