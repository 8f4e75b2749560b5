package core

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/goliatone/go-xbridge/codec"
)

const (
	testNetworkID   = "0x2.eth"
	testHubNetwork  = "0x1.icon"
	testOwner       = "0xowner"
	testTransportID = "0xxcall"
)

var (
	testCounterpart       = NewNetworkAddress(testHubNetwork, "cxgovernance")
	testCounterpartBridge = NewNetworkAddress(testHubNetwork, "cxassetmanager")
)

type sentMessage struct {
	req SendRequest
	sn  int64
}

type recordingTransport struct {
	mu      sync.Mutex
	fee     *big.Int
	feeErr  error
	sendErr error
	sent    []sentMessage
	next    int64
}

func (t *recordingTransport) GetFee(context.Context, string, bool, []string) (*big.Int, error) {
	if t.feeErr != nil {
		return nil, t.feeErr
	}
	if t.fee == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(t.fee), nil
}

func (t *recordingTransport) SendCallMessage(_ context.Context, req SendRequest) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return 0, t.sendErr
	}
	t.next++
	t.sent = append(t.sent, sentMessage{req: req, sn: t.next})
	return t.next, nil
}

type memoryLedger struct {
	mu        sync.Mutex
	balances  map[string]*big.Int
	creditErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: map[string]*big.Int{}}
}

func ledgerKey(account string, asset Asset) string {
	return account + "|" + asset.Handle
}

func (l *memoryLedger) fund(account string, asset Asset, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ledgerKey(account, asset)] = big.NewInt(amount)
}

func (l *memoryLedger) balance(account string, asset Asset) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if value, ok := l.balances[ledgerKey(account, asset)]; ok {
		return new(big.Int).Set(value)
	}
	return big.NewInt(0)
}

func (l *memoryLedger) Debit(_ context.Context, from string, asset Asset, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(from, asset)
	current, ok := l.balances[key]
	if !ok || current.Cmp(amount) < 0 {
		return fmt.Errorf("memory ledger: insufficient balance for %s", key)
	}
	l.balances[key] = new(big.Int).Sub(current, amount)
	return nil
}

func (l *memoryLedger) Credit(_ context.Context, to string, asset Asset, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creditErr != nil {
		return l.creditErr
	}
	key := ledgerKey(to, asset)
	current, ok := l.balances[key]
	if !ok {
		current = big.NewInt(0)
	}
	l.balances[key] = new(big.Int).Add(current, amount)
	return nil
}

type recordingExecutor struct {
	payloads [][]byte
}

func (e *recordingExecutor) Execute(_ context.Context, payload []byte) error {
	e.payloads = append(e.payloads, append([]byte(nil), payload...))
	return nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type testBridge struct {
	svc       *Service
	transport *recordingTransport
	ledger    *memoryLedger
	executor  *recordingExecutor
}

func newTestBridge(t *testing.T, protocols *ProtocolConfig, opts ...Option) testBridge {
	t.Helper()
	transport := &recordingTransport{}
	ledger := newMemoryLedger()
	executor := &recordingExecutor{}
	all := append([]Option{
		WithLogger(stubLogger{}),
		WithTransport(transport),
		WithAssetLedger(ledger),
		WithExecutor(executor),
	}, opts...)
	svc, err := NewService(Config{NetworkID: testNetworkID}, all...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.Initialize(context.Background(), testOwner, InitParams{
		Version:           "v1",
		Transport:         testTransportID,
		Counterpart:       testCounterpart,
		CounterpartBridge: testCounterpartBridge,
		Protocols:         protocols,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return testBridge{svc: svc, transport: transport, ledger: ledger, executor: executor}
}

func (b testBridge) deliver(from NetworkAddress, envelope codec.Envelope, delivered ...string) error {
	data, err := codec.Encode(envelope)
	if err != nil {
		return err
	}
	return b.svc.HandleCallMessage(context.Background(), CallMessage{
		Caller:    testTransportID,
		From:      from,
		Data:      data,
		Delivered: delivered,
	})
}

func relays(values ...string) []string {
	return append([]string{}, values...)
}
