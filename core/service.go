package core

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	stateStore        StateStore
	transport         Transport
	ledger            AssetLedger
	executor          Executor
	upgradeHooks      []UpgradeHook

	mu sync.Mutex
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	StateStore        StateStore
	Transport         Transport
	AssetLedger       AssetLedger
	Executor          Executor
	UpgradeHooks      []UpgradeHook
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("xbridge", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("xbridge"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stateStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.stateStore = stores.StateStore()
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.stateStore = stores.StateStore()
		}
	}
	if builder.stateStore == nil {
		builder.stateStore = NewMemoryStateStore()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		stateStore:        builder.stateStore,
		transport:         builder.transport,
		ledger:            builder.ledger,
		executor:          builder.executor,
		upgradeHooks:      append([]UpgradeHook(nil), builder.upgradeHooks...),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		StateStore:        s.stateStore,
		Transport:         s.transport,
		AssetLedger:       s.ledger,
		Executor:          s.executor,
		UpgradeHooks:      append([]UpgradeHook(nil), s.upgradeHooks...),
	}
}

// Initialize records the version stamp. The first call constructs the
// bridge with caller as owner and admin; later calls with a different stamp
// are owner-only upgrades that run the registered upgrade hooks.
func (s *Service) Initialize(ctx context.Context, caller string, params InitParams) (err error) {
	startedAt := s.now()
	caller = strings.TrimSpace(caller)
	version := strings.TrimSpace(params.Version)
	fields := map[string]any{
		"caller":  caller,
		"version": version,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "initialize", err, fields)
	}()

	if caller == "" {
		err = s.mapError(valueError("core: caller is required", nil))
		return err
	}
	if version == "" {
		err = s.mapError(valueError("core: version stamp is required", nil))
		return err
	}

	err = s.update(ctx, func(state *BridgeState) error {
		if !state.Initialized() {
			return s.construct(state, caller, version, params)
		}
		if state.Version == version {
			return configurationError("core: version stamp already recorded", map[string]any{
				"version": version,
			})
		}
		if !isPrincipal(state.Principals.Owner, caller) {
			return unauthorizedCaller("owner", caller)
		}
		previous := state.Version
		fields["previous_version"] = previous
		state.Version = version
		for _, hook := range s.upgradeHooks {
			if hookErr := hook.Upgrade(ctx, previous, version, state); hookErr != nil {
				return externalError(hookErr, "core: upgrade hook failed", map[string]any{
					"from": previous,
					"to":   version,
				})
			}
		}
		return nil
	})
	return err
}

func (s *Service) construct(state *BridgeState, caller string, version string, params InitParams) error {
	transport := strings.TrimSpace(params.Transport)
	if transport == "" {
		return valueError("core: transport identity is required", nil)
	}
	if err := params.Counterpart.Validate(); err != nil {
		return valueError("core: counterpart identity is invalid", map[string]any{"reason": err.Error()})
	}
	counterpartBridge := params.CounterpartBridge
	if counterpartBridge.IsZero() {
		counterpartBridge = params.Counterpart
	}
	if err := counterpartBridge.Validate(); err != nil {
		return valueError("core: counterpart bridge identity is invalid", map[string]any{"reason": err.Error()})
	}

	fresh := NewBridgeState()
	fresh.Version = version
	fresh.Principals = Principals{
		Owner:             caller,
		Admin:             caller,
		Transport:         transport,
		Counterpart:       params.Counterpart,
		CounterpartBridge: counterpartBridge,
	}
	if params.Protocols != nil {
		NewProtocolGuard(&fresh).Install(*params.Protocols)
	}
	*state = fresh
	return nil
}

func (s *Service) ProposeRemoval(ctx context.Context, caller string, relayID string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "relay_id": relayID}
	defer func() {
		s.observeOperation(ctx, startedAt, "propose_removal", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireAdmin(*state, caller); err != nil {
			return err
		}
		return NewProtocolGuard(state).Propose(relayID)
	})
	return err
}

func (s *Service) ClearProposedRemoval(ctx context.Context, caller string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller}
	defer func() {
		s.observeOperation(ctx, startedAt, "clear_proposed_removal", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireAdmin(*state, caller); err != nil {
			return err
		}
		NewProtocolGuard(state).Clear()
		return nil
	})
	return err
}

func (s *Service) SetAdmin(ctx context.Context, caller string, admin string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "admin": admin}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_admin", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireAdmin(*state, caller); err != nil {
			return err
		}
		admin = strings.TrimSpace(admin)
		if admin == "" {
			return valueError("core: admin is required", nil)
		}
		state.Principals.Admin = admin
		return nil
	})
	return err
}

// SetTransport rebinds the transport identity; allowed for owner or admin.
func (s *Service) SetTransport(ctx context.Context, caller string, transport string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "transport": transport}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_transport", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireInitialized(*state); err != nil {
			return err
		}
		if !isPrincipal(state.Principals.Owner, caller) && !isPrincipal(state.Principals.Admin, caller) {
			return unauthorizedCaller("owner or admin", caller)
		}
		transport = strings.TrimSpace(transport)
		if transport == "" {
			return valueError("core: transport identity is required", nil)
		}
		state.Principals.Transport = transport
		return nil
	})
	return err
}

func (s *Service) SetCounterpart(ctx context.Context, caller string, counterpart NetworkAddress) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "counterpart": counterpart.String()}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_counterpart", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireOwner(*state, caller); err != nil {
			return err
		}
		if err := counterpart.Validate(); err != nil {
			return valueError("core: counterpart identity is invalid", map[string]any{"reason": err.Error()})
		}
		state.Principals.Counterpart = counterpart
		return nil
	})
	return err
}

func (s *Service) SetCounterpartBridge(ctx context.Context, caller string, counterpart NetworkAddress) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "counterpart_bridge": counterpart.String()}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_counterpart_bridge", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireOwner(*state, caller); err != nil {
			return err
		}
		if err := counterpart.Validate(); err != nil {
			return valueError("core: counterpart bridge identity is invalid", map[string]any{"reason": err.Error()})
		}
		state.Principals.CounterpartBridge = counterpart
		return nil
	})
	return err
}

func (s *Service) Name() string {
	if s == nil {
		return ""
	}
	return s.config.Name
}

func (s *Service) Version(ctx context.Context) (string, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return state.Version, nil
}

func (s *Service) GetProtocols(ctx context.Context) (ProtocolConfig, error) {
	state, err := s.load(ctx)
	if err != nil {
		return ProtocolConfig{}, err
	}
	cfg, err := NewProtocolGuard(&state).Protocols()
	if err != nil {
		return ProtocolConfig{}, s.mapError(err)
	}
	return cfg, nil
}

// GetProposedRemoval returns the pending relay id, or "" when none is set.
func (s *Service) GetProposedRemoval(ctx context.Context) (string, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return state.ProposedRemoval, nil
}

func (s *Service) GetGuardState(ctx context.Context) (GuardState, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return NewProtocolGuard(&state).State(), nil
}

func (s *Service) GetAdmin(ctx context.Context) (string, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return state.Principals.Admin, nil
}

func (s *Service) GetOwner(ctx context.Context) (string, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return state.Principals.Owner, nil
}

func (s *Service) GetTransport(ctx context.Context) (string, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return state.Principals.Transport, nil
}

func (s *Service) GetCounterpart(ctx context.Context) (NetworkAddress, error) {
	state, err := s.load(ctx)
	if err != nil {
		return NetworkAddress{}, err
	}
	return state.Principals.Counterpart, nil
}

func (s *Service) GetCounterpartBridge(ctx context.Context) (NetworkAddress, error) {
	state, err := s.load(ctx)
	if err != nil {
		return NetworkAddress{}, err
	}
	return state.Principals.CounterpartBridge, nil
}

// State returns a copy of the current aggregate.
func (s *Service) State(ctx context.Context) (BridgeState, error) {
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) (BridgeState, error) {
	if s == nil || s.stateStore == nil {
		return BridgeState{}, s.mapError(configurationError("core: state store is required", nil))
	}
	state, err := s.stateStore.Load(ctx)
	if err != nil {
		return BridgeState{}, s.mapError(err)
	}
	return state, nil
}

// update serializes mutations; fn sees a private copy that is committed only
// when fn returns nil.
func (s *Service) update(ctx context.Context, fn func(state *BridgeState) error) error {
	if s == nil || s.stateStore == nil {
		return s.mapError(configurationError("core: state store is required", nil))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.stateStore.Update(ctx, fn); err != nil {
		return s.mapError(err)
	}
	return nil
}

// sideEffect is a ledger or transport call planned inside an update.
type sideEffect func(ctx context.Context) error

// updateThen commits the state change fn makes and only then runs the effect
// fn planned, still holding the service lock. A commit failure runs no
// effect. An effect failure keeps the committed change, so fn may only plan
// alongside changes that stay valid without the effect.
func (s *Service) updateThen(ctx context.Context, fn func(state *BridgeState) (sideEffect, error)) error {
	if s == nil || s.stateStore == nil {
		return s.mapError(configurationError("core: state store is required", nil))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var effect sideEffect
	_, err := s.stateStore.Update(ctx, func(state *BridgeState) error {
		planned, err := fn(state)
		if err != nil {
			return err
		}
		effect = planned
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	if effect == nil {
		return nil
	}
	return s.mapError(effect(ctx))
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}

func requireInitialized(state BridgeState) error {
	if !state.Initialized() {
		return configurationError("core: bridge is not initialized", nil)
	}
	return nil
}

func requireOwner(state BridgeState, caller string) error {
	if err := requireInitialized(state); err != nil {
		return err
	}
	if !isPrincipal(state.Principals.Owner, caller) {
		return unauthorizedCaller("owner", caller)
	}
	return nil
}

func requireAdmin(state BridgeState, caller string) error {
	if err := requireInitialized(state); err != nil {
		return err
	}
	if !isPrincipal(state.Principals.Admin, caller) {
		return unauthorizedCaller("admin", caller)
	}
	return nil
}

func isPrincipal(principal string, caller string) bool {
	principal = strings.TrimSpace(principal)
	return principal != "" && strings.EqualFold(principal, strings.TrimSpace(caller))
}
