package xbridge

import "github.com/goliatone/go-xbridge/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type BridgeState = core.BridgeState
type NetworkAddress = core.NetworkAddress
type ProtocolConfig = core.ProtocolConfig
type Asset = core.Asset
type CallMessage = core.CallMessage
type InitParams = core.InitParams
type DepositRequest = core.DepositRequest
type DepositReceipt = core.DepositReceipt
type Transport = core.Transport
type AssetLedger = core.AssetLedger
type Executor = core.Executor
type StateStore = core.StateStore
type UpgradeHook = core.UpgradeHook
type UpgradeHookFunc = core.UpgradeHookFunc

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStateStore        = core.WithStateStore
	WithTransport         = core.WithTransport
	WithAssetLedger       = core.WithAssetLedger
	WithExecutor          = core.WithExecutor
	WithUpgradeHooks      = core.WithUpgradeHooks
)

var (
	IsAuthorizationError = core.IsAuthorizationError
	IsProtocolMismatch   = core.IsProtocolMismatch
	IsConfigurationError = core.IsConfigurationError
	IsValueError         = core.IsValueError
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func ParseNetworkAddress(value string) (NetworkAddress, error) {
	return core.ParseNetworkAddress(value)
}
