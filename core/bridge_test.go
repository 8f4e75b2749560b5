package core

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"testing"

	"github.com/goliatone/go-xbridge/codec"
)

const testSender = "0xalice"

func TestDeposit_NativeSubtractsFeeAndCapturesCapsule(t *testing.T) {
	bridge := newTestBridge(t, &ProtocolConfig{Sources: relays("a"), Destinations: relays("d1", "d2")})
	bridge.transport.fee = big.NewInt(10)
	bridge.ledger.fund(testSender, NativeAsset(), 100)

	receipt, err := bridge.svc.Deposit(context.Background(), DepositRequest{
		Sender: testSender,
		Value:  big.NewInt(100),
		Data:   []byte("memo"),
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if receipt.Amount.Int64() != 90 || receipt.Fee.Int64() != 10 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if bridge.ledger.balance(testSender, NativeAsset()).Sign() != 0 {
		t.Fatalf("expected full value taken into custody")
	}
	if len(bridge.transport.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(bridge.transport.sent))
	}
	sent := bridge.transport.sent[0].req
	if !sent.To.Equal(testCounterpartBridge) {
		t.Fatalf("expected send to counterpart bridge, got %s", sent.To)
	}
	if !slices.Equal(sent.Destinations, []string{"d1", "d2"}) || !slices.Equal(sent.Sources, []string{"d1", "d2"}) {
		t.Fatalf("expected current destinations captured, got %+v", sent)
	}

	decoded, err := codec.Decode(sent.Data)
	if err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	deposit := decoded.(codec.Deposit)
	if deposit.AssetID != testNetworkID+"/"+NativeAssetHandle {
		t.Fatalf("unexpected native asset id %q", deposit.AssetID)
	}
	if deposit.Recipient != testNetworkID+"/"+testSender {
		t.Fatalf("expected recipient defaulted to sender, got %q", deposit.Recipient)
	}
	if deposit.Amount.Int64() != 90 || string(deposit.Data) != "memo" {
		t.Fatalf("unexpected deposit %+v", deposit)
	}

	decoded, err = codec.Decode(sent.Rollback)
	if err != nil {
		t.Fatalf("decode rollback: %v", err)
	}
	capsule := decoded.(codec.DepositRevert)
	if capsule.Sender != testSender || capsule.Amount.Int64() != 90 || capsule.AssetID != deposit.AssetID {
		t.Fatalf("unexpected capsule %+v", capsule)
	}
}

func TestDeposit_NativeFeeMustLeavePositiveAmount(t *testing.T) {
	bridge := newTestBridge(t, &ProtocolConfig{})
	bridge.transport.fee = big.NewInt(100)
	bridge.ledger.fund(testSender, NativeAsset(), 100)

	_, err := bridge.svc.Deposit(context.Background(), DepositRequest{Sender: testSender, Value: big.NewInt(100)})
	if !IsValueError(err) {
		t.Fatalf("expected value error, got %v", err)
	}
	if len(bridge.transport.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
	if bridge.ledger.balance(testSender, NativeAsset()).Int64() != 100 {
		t.Fatalf("expected balance untouched")
	}
	if _, err := bridge.svc.Deposit(context.Background(), DepositRequest{Sender: testSender, Value: big.NewInt(0)}); !IsValueError(err) {
		t.Fatalf("expected value error for zero deposit, got %v", err)
	}
}

func TestDeposit_TokenChargesFeeSeparatelyAndRegistersAsset(t *testing.T) {
	ctx := context.Background()
	token := TokenAsset("0xusdc")
	bridge := newTestBridge(t, &ProtocolConfig{Destinations: relays("d1")})
	bridge.transport.fee = big.NewInt(5)
	bridge.ledger.fund(testSender, token, 50)
	bridge.ledger.fund(testSender, NativeAsset(), 5)

	_, err := bridge.svc.Deposit(ctx, DepositRequest{
		Sender: testSender,
		Asset:  "0xusdc",
		Value:  big.NewInt(50),
		Fee:    big.NewInt(4),
	})
	if !IsValueError(err) {
		t.Fatalf("expected value error for uncovered fee, got %v", err)
	}
	state, err := bridge.svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Assets.Len() != 0 {
		t.Fatalf("expected failed deposit not to register the asset, got %v", state.Assets.Entries())
	}

	receipt, err := bridge.svc.Deposit(ctx, DepositRequest{
		Sender:    testSender,
		Asset:     "0xusdc",
		Value:     big.NewInt(50),
		Fee:       big.NewInt(5),
		Recipient: "0x1.icon/hxbob",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if receipt.Amount.Int64() != 50 || receipt.AssetID != testNetworkID+"/0xusdc" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if bridge.ledger.balance(testSender, token).Sign() != 0 || bridge.ledger.balance(testSender, NativeAsset()).Sign() != 0 {
		t.Fatalf("expected token and fee taken into custody")
	}
	state, err = bridge.svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if remoteID, ok := state.Assets.Remote("0xusdc"); !ok || remoteID != testNetworkID+"/0xusdc" {
		t.Fatalf("expected first deposit to register the asset, got %q %v", remoteID, ok)
	}
}

func TestDeposit_SendFailureReleasesCustody(t *testing.T) {
	bridge := newTestBridge(t, &ProtocolConfig{})
	bridge.transport.fee = big.NewInt(1)
	bridge.transport.sendErr = errors.New("relay offline")
	bridge.ledger.fund(testSender, NativeAsset(), 10)

	if _, err := bridge.svc.Deposit(context.Background(), DepositRequest{Sender: testSender, Value: big.NewInt(10)}); err == nil {
		t.Fatalf("expected send failure")
	}
	if bridge.ledger.balance(testSender, NativeAsset()).Int64() != 10 {
		t.Fatalf("expected custody released after failed send")
	}
}

func TestWithdraw_OnlyFromCounterpartBridgeWithAttestation(t *testing.T) {
	ctx := context.Background()
	bridge := newTestBridge(t, &ProtocolConfig{Sources: relays("a")})
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "0x1.icon/cxbnusd", "0xbnusd"); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	withdraw := codec.WithdrawTo{AssetID: "0x1.icon/cxbnusd", Recipient: "0xbob", Amount: big.NewInt(7)}

	if err := bridge.deliver(testCounterpart, withdraw, "a"); !IsAuthorizationError(err) {
		t.Fatalf("expected governance identity rejected for withdraw, got %v", err)
	}
	if err := bridge.deliver(testCounterpartBridge, withdraw); !IsProtocolMismatch(err) {
		t.Fatalf("expected protocol mismatch without attestation, got %v", err)
	}
	if err := bridge.deliver(testCounterpartBridge, withdraw, "a", "extra"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := bridge.ledger.balance("0xbob", TokenAsset("0xbnusd")).Int64(); got != 7 {
		t.Fatalf("expected 7 credited, got %d", got)
	}

	native := codec.WithdrawNativeTo{AssetID: testNetworkID + "/" + NativeAssetHandle, Recipient: testNetworkID + "/0xbob", Amount: big.NewInt(3)}
	if err := bridge.deliver(testCounterpartBridge, native, "a"); err != nil {
		t.Fatalf("withdraw native: %v", err)
	}
	if got := bridge.ledger.balance("0xbob", NativeAsset()).Int64(); got != 3 {
		t.Fatalf("expected native payout of 3, got %d", got)
	}

	unknown := codec.WithdrawTo{AssetID: "0x1.icon/cxunknown", Recipient: "0xbob", Amount: big.NewInt(1)}
	if err := bridge.deliver(testCounterpartBridge, unknown, "a"); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error for unknown asset, got %v", err)
	}
	zero := codec.WithdrawTo{AssetID: "0x1.icon/cxbnusd", Recipient: "0xbob", Amount: big.NewInt(0)}
	if err := bridge.deliver(testCounterpartBridge, zero, "a"); !IsValueError(err) {
		t.Fatalf("expected value error for zero withdraw, got %v", err)
	}
}

func TestDepositRollback_OnlyFromLocalTransportEndpoint(t *testing.T) {
	bridge := newTestBridge(t, &ProtocolConfig{Sources: relays("a")})
	capsule := codec.DepositRevert{AssetID: testNetworkID + "/" + NativeAssetHandle, Sender: testSender, Amount: big.NewInt(90)}

	if err := bridge.deliver(testCounterpartBridge, capsule, "a"); !IsAuthorizationError(err) {
		t.Fatalf("expected remote rollback rejected, got %v", err)
	}
	if err := bridge.deliver(NewNetworkAddress(testHubNetwork, testTransportID), capsule); !IsAuthorizationError(err) {
		t.Fatalf("expected remote transport identity rejected, got %v", err)
	}
	if err := bridge.deliver(NewNetworkAddress(testNetworkID, testTransportID), capsule); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := bridge.ledger.balance(testSender, NativeAsset()).Int64(); got != 90 {
		t.Fatalf("expected 90 refunded, got %d", got)
	}
}

func TestHandleCallMessage_FailedCreditCommitsNothing(t *testing.T) {
	ctx := context.Background()
	bridge := newTestBridge(t, &ProtocolConfig{Sources: relays("a")})
	bridge.ledger.creditErr = errors.New("ledger down")
	withdraw := codec.WithdrawTo{AssetID: testNetworkID + "/" + NativeAssetHandle, Recipient: "0xbob", Amount: big.NewInt(1)}

	err := bridge.deliver(testCounterpartBridge, withdraw, "a")
	if err == nil {
		t.Fatalf("expected credit failure")
	}
	if got := bridge.ledger.balance("0xbob", NativeAsset()).Sign(); got != 0 {
		t.Fatalf("expected no credit")
	}
	if version, _ := bridge.svc.Version(ctx); version != "v1" {
		t.Fatalf("expected state intact, got version %q", version)
	}
}

func TestRegisterAsset_OwnerOnlyAndNeverReplaced(t *testing.T) {
	ctx := context.Background()
	bridge := newTestBridge(t, &ProtocolConfig{})
	if err := bridge.svc.RegisterAsset(ctx, "0xstranger", "0x1.icon/cxsicx", "0xsicx"); !IsAuthorizationError(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "0x1.icon/cxsicx", "0xsicx"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "0x1.icon/cxsicx", "0xother"); !IsConfigurationError(err) {
		t.Fatalf("expected conflicting mapping rejected, got %v", err)
	}
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "cxsicx", "0xsicx2"); !IsValueError(err) {
		t.Fatalf("expected unqualified asset id rejected, got %v", err)
	}
	if err := bridge.svc.RegisterAsset(ctx, testOwner, "0x1.icon/cxnative", NativeAssetHandle); !IsValueError(err) {
		t.Fatalf("expected native handle rejected, got %v", err)
	}
}
