package sqlstore

import (
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-xbridge/core"
	"github.com/uptrace/bun"
)

const defaultBridgeName = "xbridge"

type RepositoryFactory struct {
	db         *bun.DB
	bridgeName string
	cache      repositorycache.CacheService
	logger     core.Logger

	stateStore core.StateStore
	claimStore *DeliveryClaimStore
}

type FactoryOption func(*RepositoryFactory)

// WithBridgeName scopes the state store to one bridge row.
func WithBridgeName(name string) FactoryOption {
	return func(f *RepositoryFactory) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			f.bridgeName = trimmed
		}
	}
}

// WithStateCache wraps the state store in a read-through cache.
func WithStateCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

// WithLogger receives store-level warnings such as failed cache
// invalidations.
func WithLogger(logger core.Logger) FactoryOption {
	return func(f *RepositoryFactory) {
		f.logger = logger
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{bridgeName: defaultBridgeName}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.stateStore != nil && f.claimStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) StateStore() core.StateStore {
	if f == nil {
		return nil
	}
	return f.stateStore
}

func (f *RepositoryFactory) DeliveryClaimStore() *DeliveryClaimStore {
	if f == nil {
		return nil
	}
	return f.claimStore
}

func (f *RepositoryFactory) BridgeName() string {
	if f == nil {
		return ""
	}
	return f.bridgeName
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	stateStore, err := NewStateStore(f.db, f.bridgeName)
	if err != nil {
		return err
	}
	f.stateStore = stateStore
	if f.cache != nil {
		cached, cacheErr := NewCachedStateStore(stateStore, f.cache, f.bridgeName, WithCacheLogger(f.logger))
		if cacheErr != nil {
			return cacheErr
		}
		f.stateStore = cached
	}

	claimStore, err := NewDeliveryClaimStore(f.db)
	if err != nil {
		return err
	}
	f.claimStore = claimStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
