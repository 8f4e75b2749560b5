package core

import (
	"context"
	"math/big"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives one counter and one duration histogram per
// service operation. Tags are copies the recorder may keep.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// NopMetricsRecorder is the recorder a Service uses when none is configured.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// SendRequest is one outbound cross-chain call.
type SendRequest struct {
	From         string // account paying the fee
	To           NetworkAddress
	Data         []byte
	Rollback     []byte
	Sources      []string
	Destinations []string
	Fee          *big.Int
}

// Transport is the cross-chain messaging substrate. SendCallMessage returns
// the transport's serial number for the send.
type Transport interface {
	GetFee(ctx context.Context, network string, rollback bool, sources []string) (*big.Int, error)
	SendCallMessage(ctx context.Context, req SendRequest) (int64, error)
}

// AssetLedger moves value in and out of the bridge's custody on this chain.
type AssetLedger interface {
	Debit(ctx context.Context, from string, asset Asset, amount *big.Int) error
	Credit(ctx context.Context, to string, asset Asset, amount *big.Int) error
}

// Executor runs administrative batch payloads delivered through execute.
type Executor interface {
	Execute(ctx context.Context, payload []byte) error
}

// StateStore persists the bridge aggregate. Update applies fn to a private
// copy of the current state and commits the copy only if fn returns nil.
type StateStore interface {
	Load(ctx context.Context) (BridgeState, error)
	Update(ctx context.Context, fn func(state *BridgeState) error) (BridgeState, error)
}

// UpgradeHook runs once per accepted version change.
type UpgradeHook interface {
	Upgrade(ctx context.Context, from string, to string, state *BridgeState) error
}

type UpgradeHookFunc func(ctx context.Context, from string, to string, state *BridgeState) error

func (f UpgradeHookFunc) Upgrade(ctx context.Context, from string, to string, state *BridgeState) error {
	if f == nil {
		return nil
	}
	return f(ctx, from, to, state)
}

type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type StoreProvider interface {
	StateStore() StateStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// CallMessage is an inbound delivery handed over by the transport.
type CallMessage struct {
	Caller     string
	From       NetworkAddress
	Data       []byte
	Delivered  []string
	DeliveryID string
}

// InitParams carries the construction and upgrade arguments.
type InitParams struct {
	Version           string
	Transport         string
	Counterpart       NetworkAddress
	CounterpartBridge NetworkAddress
	Protocols         *ProtocolConfig
}

type DepositRequest struct {
	Sender    string
	Asset     string
	Value     *big.Int
	Fee       *big.Int
	Recipient string
	Data      []byte
}

type DepositReceipt struct {
	SerialNumber int64
	AssetID      string
	Amount       *big.Int
	Fee          *big.Int
	Destinations []string
}

// BridgeService is the operation surface consumed by command, query and
// inbound adapters.
type BridgeService interface {
	Initialize(ctx context.Context, caller string, params InitParams) error
	HandleCallMessage(ctx context.Context, msg CallMessage) error
	Deposit(ctx context.Context, req DepositRequest) (DepositReceipt, error)
	ProposeRemoval(ctx context.Context, caller string, relayID string) error
	ClearProposedRemoval(ctx context.Context, caller string) error
	SetAdmin(ctx context.Context, caller string, admin string) error
	SetTransport(ctx context.Context, caller string, transport string) error
	SetCounterpart(ctx context.Context, caller string, counterpart NetworkAddress) error
	SetCounterpartBridge(ctx context.Context, caller string, counterpart NetworkAddress) error
	RegisterAsset(ctx context.Context, caller string, remoteID string, localHandle string) error
	Name() string
	Version(ctx context.Context) (string, error)
	GetProtocols(ctx context.Context) (ProtocolConfig, error)
	GetProposedRemoval(ctx context.Context) (string, error)
	GetAdmin(ctx context.Context) (string, error)
	GetOwner(ctx context.Context) (string, error)
	GetTransport(ctx context.Context) (string, error)
	GetCounterpart(ctx context.Context) (NetworkAddress, error)
	GetCounterpartBridge(ctx context.Context) (NetworkAddress, error)
	ResolveAsset(ctx context.Context, remoteID string) (Asset, error)
}
