package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/runtime"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/async"
	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/memory"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/parser"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/secrets"
	serverhttp "github.com/Drakonis96/optimAIzer-sub001/internal/server/http"
	"github.com/Drakonis96/optimAIzer-sub001/internal/skills"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/streaming"
	"github.com/Drakonis96/optimAIzer-sub001/internal/transcribe"
	"github.com/Drakonis96/optimAIzer-sub001/internal/usage"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Options customizes a server boot. The zero value runs with the scripted
// provider and no optional backends.
type Options struct {
	// ConfigOptions feed the loader; the CLI passes flag overrides through
	// config.WithOverrides.
	ConfigOptions []config.Option

	// Providers builds the model adapter factory once configuration is
	// loaded. Nil means the scripted default.
	Providers ProviderBuilder

	// Collab supplies optional tool backends. A nil Transcriber is filled
	// from WHISPER_API_URL when that is configured.
	Collab runtime.Collaborators

	// Poller gates poll-type subscription firing; nil leaves them dormant.
	Poller scheduler.Poller

	// Version is reported by /healthz.
	Version string
}

// System is the assembled runtime: configuration, the keyed store, the agent
// manager, and the HTTP server, plus the shutdown bookkeeping for all of it.
type System struct {
	Config    config.RuntimeConfig
	Logger    logging.Logger
	Store     store.Store
	Workspace *workspace.Workspace
	Manager   *runtime.Manager
	Server    *serverhttp.Server
	Degraded  *DegradedSet

	subsystems *SubsystemManager
	cleanups   []func()
}

// Run boots the system and blocks until a shutdown signal or a fatal server
// error. Always-on agents are drained within the configured window before
// the process exits.
func Run(opts Options) error {
	sys, err := NewSystem(opts)
	if err != nil {
		return err
	}
	defer sys.Close()
	return serveUntilSignal(sys.Server, sys.Config.DrainTimeout, sys.Logger)
}

// NewSystem assembles the runtime in phases without starting the HTTP
// listener. Callers own the returned system and must Close it.
func NewSystem(opts Options) (*System, error) {
	cfg, meta, err := config.Load(opts.ConfigOptions...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.FromObservabilityWithComponent(
		observability.NewLogger(cfg.Observability.Logging), "main")
	logger.Info("Starting optimaizer agent runtime...")
	logConfiguration(logger, cfg, meta)

	if cfg.IDStrategy == "uuidv7" {
		id.SetStrategy(id.StrategyUUIDv7)
	}

	degraded := NewDegradedSet()
	sys := &System{Config: cfg, Logger: logger, Degraded: degraded}
	ok := false
	defer func() {
		if !ok {
			sys.Close()
		}
	}()

	// ── Phase 1: Required infrastructure (failure aborts startup) ──

	st, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sys.Store = st
	sys.cleanups = append(sys.cleanups, func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close: %v", err)
		}
	})

	var codec *secrets.Codec
	if cfg.CredentialsKey != "" {
		codec, err = secrets.NewCodec(cfg.CredentialsKey)
		if err != nil {
			return nil, fmt.Errorf("credentials codec: %w", err)
		}
	}
	ws := workspace.New(st, codec, logger)
	sys.Workspace = ws

	// ── Phase 2: Optional services (failure records degraded, continues) ──

	var metrics *observability.MetricsCollector

	optionalStages := []Stage{
		{
			Name: "metrics", Required: false,
			Init: func() error {
				collector, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
				if err != nil {
					return err
				}
				metrics = collector
				sys.cleanups = append(sys.cleanups, func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := collector.Shutdown(shutdownCtx); err != nil {
						logger.Warn("metrics shutdown: %v", err)
					}
				})
				return nil
			},
		},
		{
			Name: "tracing", Required: false,
			Init: func() error {
				provider, err := observability.NewTracerProvider(cfg.Observability.Tracing)
				if err != nil {
					return err
				}
				sys.cleanups = append(sys.cleanups, func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := provider.Shutdown(shutdownCtx); err != nil {
						logger.Warn("tracing shutdown: %v", err)
					}
				})
				return nil
			},
		},
	}
	if err := RunStages(optionalStages, degraded, logger); err != nil {
		return nil, fmt.Errorf("optional stages: %w", err)
	}

	accountant := usage.NewAccountant(st, usage.Config{
		MonthlyLimitUSD:    cfg.Budget.MonthlyLimitUSD,
		PromptUSDPer1K:     cfg.Budget.PromptUSDPer1K,
		CompletionUSDPer1K: cfg.Budget.CompletionUSDPer1K,
	}, logger).WithMetrics(metrics)

	dispatcher, err := streaming.NewDispatcher(streaming.Config{
		CacheSize:     cfg.StreamCache.MaxEntries,
		CacheTTL:      cfg.StreamCache.TTL,
		CacheDisabled: !cfg.StreamCache.Enabled,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("stream dispatcher: %w", err)
	}

	collab := opts.Collab
	if collab.Transcriber == nil && cfg.WhisperAPIURL != "" {
		whisper := transcribe.NewWhisper(cfg.WhisperAPIURL, logger)
		if cfg.WhisperModel != "" {
			whisper = whisper.WithModel(cfg.WhisperModel)
		}
		collab.Transcriber = whisper
	}

	builder := opts.Providers
	if builder == nil {
		builder = DefaultProviderBuilder()
	}
	providers, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider factory: %w", err)
	}

	// ── Phase 3: Agent subsystems (managed lifecycle) ──

	sys.subsystems = NewSubsystemManager(logger)

	hub := serverhttp.NewOperatorHub(logger)
	manager := runtime.NewManager(runtime.Deps{
		Store:      st,
		Workspace:  ws,
		Skills:     skills.NewService(st, logger),
		Memory:     memory.NewSnapshotter(st, logger),
		Accountant: accountant,
		Providers:  providers,
		Parser:     parser.New(logger),
		Collab:     collab,
		Poller:     opts.Poller,
		Prompters:  []approval.Prompter{hub},
		Logger:     logger,
		Metrics:    metrics,
	}, runtime.Config{
		DrainTimeout:    cfg.DrainTimeout,
		TelegramBaseURL: cfg.TelegramAPIBaseURL,
		Approval:        approval.Config{Timeout: cfg.ApprovalTimeout},
	})
	sys.Manager = manager

	agentStages := []Stage{
		{
			Name: "agents", Required: false,
			Init: func() error {
				return sys.subsystems.Start(context.Background(), &agentSubsystem{
					manager: manager,
					logger:  logger,
				})
			},
		},
	}
	if err := RunStages(agentStages, degraded, logger); err != nil {
		return nil, fmt.Errorf("agent stages: %w", err)
	}

	// ── Phase 4: HTTP layer ──

	srv, err := serverhttp.New(serverhttp.Config{
		Port:            cfg.Port,
		CORSOrigin:      cfg.CORSOrigin,
		Version:         opts.Version,
		TelegramBaseURL: cfg.TelegramAPIBaseURL,
	}, serverhttp.Deps{
		Store:     st,
		Workspace: ws,
		Manager:   manager,
		Streams:   dispatcher,
		Providers: providers,
		Usage:     accountant,
		Hub:       hub,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	sys.Server = srv

	if !degraded.IsEmpty() {
		logger.Warn("[Bootstrap] Starting in degraded mode: %v", degraded.Map())
	}

	ok = true
	return sys, nil
}

// Close stops subsystems in reverse start order, then runs resource
// cleanups newest-first. Safe to call more than once.
func (s *System) Close() {
	if s.subsystems != nil {
		s.subsystems.StopAll()
	}
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}

// OpenStore opens the store the configuration names: file-backed under
// DBPath, or in-memory when the path is empty. The console shares this so a
// local session sees the same data a server on the same path would. With
// metrics enabled the store is wrapped so every operation is counted.
func OpenStore(cfg config.RuntimeConfig, logger logging.Logger) (store.Store, error) {
	var st store.Store
	if cfg.DBPath == "" {
		logger.Info("[Bootstrap] Using in-memory store")
		st = store.NewMemory()
	} else {
		fileStore, err := store.NewFile(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		st = fileStore
	}
	if cfg.Observability.Metrics.Enabled {
		st = store.WithMetrics(st, observability.NewStoreMetrics())
	}
	return st, nil
}

func logConfiguration(logger logging.Logger, cfg config.RuntimeConfig, meta config.Metadata) {
	storeKind := "file:" + cfg.DBPath
	if cfg.DBPath == "" {
		storeKind = "memory"
	}
	logger.Info("[Bootstrap] Config: port=%d env=%s store=%s cors=%s (port source: %s)",
		cfg.Port, cfg.Environment, storeKind, cfg.CORSOrigin, meta.Source("port"))
	logger.Info("[Bootstrap] Config: stream cache enabled=%v ttl=%s entries=%d, approval timeout %s, drain %s",
		cfg.StreamCache.Enabled, cfg.StreamCache.TTL, cfg.StreamCache.MaxEntries,
		cfg.ApprovalTimeout, cfg.DrainTimeout)
	if names := cfg.ProviderNames(); len(names) > 0 {
		logger.Info("[Bootstrap] Config: provider keys loaded for %s", strings.Join(names, ", "))
	}
	if cfg.CredentialsKey != "" {
		logger.Info("[Bootstrap] Config: credential sealing enabled")
	}
	if cfg.Budget.MonthlyLimitUSD > 0 {
		logger.Info("[Bootstrap] Config: monthly budget $%.2f", cfg.Budget.MonthlyLimitUSD)
	}
}

// agentSubsystem adapts the agent manager to the Subsystem lifecycle:
// always-on agents deploy at boot and drain at shutdown.
type agentSubsystem struct {
	manager *runtime.Manager
	logger  logging.Logger
}

func (a *agentSubsystem) Name() string { return "agents" }

func (a *agentSubsystem) Start(ctx context.Context) error {
	count, err := a.manager.AutoStartAlwaysOn(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("[Bootstrap] %d always-on agents running", count)
	return nil
}

func (a *agentSubsystem) Stop() {
	a.manager.StopAll(context.Background())
}

func serveUntilSignal(server *serverhttp.Server, drain time.Duration, logger logging.Logger) error {
	logger = logging.OrNop(logger)

	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		errCh <- server.Start()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		logger.Info("Shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		serveErr := <-errCh
		if shutdownErr != nil {
			return shutdownErr
		}
		return serveErr
	}
}
