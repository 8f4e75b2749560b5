package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/goliatone/go-xbridge/codec"
)

// flakyCommitStore applies fn to a working copy and then, while failCommits
// is set, reports a commit error without storing the copy.
type flakyCommitStore struct {
	base        *MemoryStateStore
	mu          sync.Mutex
	failCommits bool
	fnCalls     int
}

func newFlakyCommitStore() *flakyCommitStore {
	return &flakyCommitStore{base: NewMemoryStateStore()}
}

func (s *flakyCommitStore) setFailCommits(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = fail
}

func (s *flakyCommitStore) Load(ctx context.Context) (BridgeState, error) {
	return s.base.Load(ctx)
}

func (s *flakyCommitStore) Update(ctx context.Context, fn func(state *BridgeState) error) (BridgeState, error) {
	s.mu.Lock()
	fail := s.failCommits
	s.mu.Unlock()
	if !fail {
		return s.base.Update(ctx, fn)
	}
	working, err := s.base.Load(ctx)
	if err != nil {
		return BridgeState{}, err
	}
	s.mu.Lock()
	s.fnCalls++
	s.mu.Unlock()
	if err := fn(&working); err != nil {
		return BridgeState{}, err
	}
	return BridgeState{}, errors.New("state store: commit failed")
}

func TestDeposit_CommitFailureTakesNoCustody(t *testing.T) {
	ctx := context.Background()
	store := newFlakyCommitStore()
	bridge := newTestBridge(t, &ProtocolConfig{Destinations: relays("d1")}, WithStateStore(store))
	token := TokenAsset("0xusdc")
	bridge.ledger.fund(testSender, token, 50)

	store.setFailCommits(true)
	if _, err := bridge.svc.Deposit(ctx, DepositRequest{Sender: testSender, Asset: "0xusdc", Value: big.NewInt(50)}); err == nil {
		t.Fatalf("expected commit failure")
	}
	if store.fnCalls != 1 {
		t.Fatalf("expected the deposit checks to run once, got %d", store.fnCalls)
	}
	if got := bridge.ledger.balance(testSender, token).Int64(); got != 50 {
		t.Fatalf("expected custody untouched after failed commit, got balance %d", got)
	}
	if len(bridge.transport.sent) != 0 {
		t.Fatalf("expected nothing sent after failed commit, got %d sends", len(bridge.transport.sent))
	}

	store.setFailCommits(false)
	receipt, err := bridge.svc.Deposit(ctx, DepositRequest{Sender: testSender, Asset: "0xusdc", Value: big.NewInt(50)})
	if err != nil {
		t.Fatalf("deposit after recovery: %v", err)
	}
	if receipt.AssetID != testNetworkID+"/0xusdc" || len(bridge.transport.sent) != 1 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestDepositRollback_ResolvesLocalTokenWithoutRegistration(t *testing.T) {
	bridge := newTestBridge(t, &ProtocolConfig{})
	capsule := codec.DepositRevert{AssetID: testNetworkID + "/0xusdc", Sender: testSender, Amount: big.NewInt(50)}

	if err := bridge.deliver(NewNetworkAddress(testNetworkID, testTransportID), capsule); err != nil {
		t.Fatalf("rollback of unregistered local token: %v", err)
	}
	if got := bridge.ledger.balance(testSender, TokenAsset("0xusdc")).Int64(); got != 50 {
		t.Fatalf("expected 50 refunded, got %d", got)
	}
}

func TestResolveAsset_LocalIDDoesNotShadowExistingMapping(t *testing.T) {
	ctx := context.Background()
	bridge := newTestBridge(t, &ProtocolConfig{})
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "0x1.icon/cxusdc", "0xusdc"); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if _, err := bridge.svc.ResolveAsset(ctx, testNetworkID+"/0xusdc"); !IsConfigurationError(err) {
		t.Fatalf("expected handle mapped elsewhere to stay unresolved, got %v", err)
	}
	asset, err := bridge.svc.ResolveAsset(ctx, testNetworkID+"/0xdai")
	if err != nil || asset.Handle != "0xdai" || asset.Native {
		t.Fatalf("expected local token 0xdai, got %+v %v", asset, err)
	}
	if _, err := bridge.svc.ResolveAsset(ctx, "0x9.other/0xdai"); !IsConfigurationError(err) {
		t.Fatalf("expected foreign unmapped id rejected, got %v", err)
	}
}

func TestHandleCallMessage_CommitFailurePaysNothing(t *testing.T) {
	store := newFlakyCommitStore()
	bridge := newTestBridge(t, &ProtocolConfig{Sources: relays("a")}, WithStateStore(store))
	withdraw := codec.WithdrawTo{AssetID: testNetworkID + "/" + NativeAssetHandle, Recipient: "0xbob", Amount: big.NewInt(5)}
	capsule := codec.DepositRevert{AssetID: testNetworkID + "/" + NativeAssetHandle, Sender: testSender, Amount: big.NewInt(9)}
	execute := codec.Execute{Payload: []byte("batch")}

	store.setFailCommits(true)
	if err := bridge.deliver(testCounterpartBridge, withdraw, "a"); err == nil {
		t.Fatalf("expected withdraw to fail with the commit")
	}
	if err := bridge.deliver(NewNetworkAddress(testNetworkID, testTransportID), capsule); err == nil {
		t.Fatalf("expected rollback to fail with the commit")
	}
	if err := bridge.deliver(testCounterpart, execute, "a"); err == nil {
		t.Fatalf("expected execute to fail with the commit")
	}
	if bridge.ledger.balance("0xbob", NativeAsset()).Sign() != 0 || bridge.ledger.balance(testSender, NativeAsset()).Sign() != 0 {
		t.Fatalf("expected no payout when the commit fails")
	}
	if len(bridge.executor.payloads) != 0 {
		t.Fatalf("expected no execute payload when the commit fails")
	}

	store.setFailCommits(false)
	if err := bridge.deliver(testCounterpartBridge, withdraw, "a"); err != nil {
		t.Fatalf("redelivered withdraw: %v", err)
	}
	if got := bridge.ledger.balance("0xbob", NativeAsset()).Int64(); got != 5 {
		t.Fatalf("expected exactly one payout of 5, got %d", got)
	}
}
