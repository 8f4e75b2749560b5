package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-xbridge/core"
)

const bridgeStateCacheKeyPrefix = "go-xbridge::bridge_state::v1"

// BridgeStateSnapshot is the cached form of a bridge aggregate. It only
// carries exported fields so any cache backend can hold it.
type BridgeStateSnapshot struct {
	Version         string
	Principals      core.Principals
	Protocols       *core.ProtocolConfig
	ProposedRemoval string
	Assets          []core.AssetMapping
}

type CachedStateStore struct {
	base       core.StateStore
	cache      repositorycache.CacheService
	bridgeName string
	logger     core.Logger
}

type CachedStateStoreOption func(*CachedStateStore)

// WithCacheLogger receives cache invalidation failures.
func WithCacheLogger(logger core.Logger) CachedStateStoreOption {
	return func(s *CachedStateStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewCachedStateStore(
	base core.StateStore,
	cacheService repositorycache.CacheService,
	bridgeName string,
	opts ...CachedStateStoreOption,
) (*CachedStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base bridge state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: bridge state cache service is required")
	}
	if strings.TrimSpace(bridgeName) == "" {
		return nil, fmt.Errorf("sqlstore: bridge name is required")
	}
	store := &CachedStateStore{
		base:       base,
		cache:      cacheService,
		bridgeName: strings.TrimSpace(bridgeName),
		logger:     glog.Ensure(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// BridgeStateCacheKey returns go-xbridge::bridge_state::v1::<bridge_name>
// with the name URL-path escaped.
func BridgeStateCacheKey(bridgeName string) (string, error) {
	bridgeName = strings.TrimSpace(bridgeName)
	if bridgeName == "" {
		return "", fmt.Errorf("sqlstore: bridge name is required")
	}
	return bridgeStateCacheKeyPrefix + "::" + url.PathEscape(bridgeName), nil
}

func (s *CachedStateStore) Load(ctx context.Context) (core.BridgeState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BridgeState{}, fmt.Errorf("sqlstore: cached bridge state store is not configured")
	}
	cacheKey, err := BridgeStateCacheKey(s.bridgeName)
	if err != nil {
		return core.BridgeState{}, err
	}
	snapshot, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (BridgeStateSnapshot, error) {
		state, fetchErr := s.base.Load(ctx)
		if fetchErr != nil {
			return BridgeStateSnapshot{}, fetchErr
		}
		return SnapshotBridgeState(state), nil
	})
	if err != nil {
		return core.BridgeState{}, err
	}
	return snapshot.Restore()
}

func (s *CachedStateStore) Update(
	ctx context.Context,
	fn func(*core.BridgeState) error,
) (core.BridgeState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BridgeState{}, fmt.Errorf("sqlstore: cached bridge state store is not configured")
	}
	state, err := s.base.Update(ctx, fn)
	if err != nil {
		return core.BridgeState{}, err
	}
	// The base store has committed; a stale cache entry must not turn that
	// into a reported failure. Loads serve the old snapshot until it expires.
	cacheKey, err := BridgeStateCacheKey(s.bridgeName)
	if err == nil {
		err = s.cache.Delete(ctx, cacheKey)
	}
	if err != nil {
		s.logger.Error("bridge state cache invalidation failed",
			"bridge", s.bridgeName,
			"cache_key", cacheKey,
			"error", err.Error(),
		)
	}
	return state, nil
}

func SnapshotBridgeState(state core.BridgeState) BridgeStateSnapshot {
	cloned := state.Clone()
	return BridgeStateSnapshot{
		Version:         cloned.Version,
		Principals:      cloned.Principals,
		Protocols:       cloned.Protocols,
		ProposedRemoval: cloned.ProposedRemoval,
		Assets:          cloned.Assets.Entries(),
	}
}

func (s BridgeStateSnapshot) Restore() (core.BridgeState, error) {
	state := core.NewBridgeState()
	state.Version = s.Version
	state.Principals = s.Principals
	if s.Protocols != nil {
		cfg := s.Protocols.Clone()
		state.Protocols = &cfg
	}
	state.ProposedRemoval = s.ProposedRemoval
	for _, mapping := range s.Assets {
		if err := state.RegisterAsset(mapping.RemoteID, mapping.LocalHandle); err != nil {
			return core.BridgeState{}, err
		}
	}
	return state, nil
}
