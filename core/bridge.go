package core

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/goliatone/go-xbridge/codec"
)

// Deposit takes custody of the sender's value and notifies the counterpart
// bridge. The rollback capsule travels with the send so the transport can
// refund the sender if the remote leg fails.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (receipt DepositReceipt, err error) {
	startedAt := s.now()
	asset := TokenAsset(req.Asset)
	fields := map[string]any{
		"sender":    req.Sender,
		"asset":     asset.Handle,
		"native":    asset.Native,
		"recipient": req.Recipient,
		"value":     amountString(req.Value),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "deposit", err, fields)
	}()

	sender := strings.TrimSpace(req.Sender)
	if sender == "" {
		err = s.mapError(valueError("core: sender is required", nil))
		return DepositReceipt{}, err
	}
	if req.Value == nil || req.Value.Sign() <= 0 {
		err = s.mapError(valueError("core: deposit value must be positive", map[string]any{
			"value": amountString(req.Value),
		}))
		return DepositReceipt{}, err
	}
	if s.transport == nil || s.ledger == nil {
		err = s.mapError(configurationError("core: transport and asset ledger are required for deposits", nil))
		return DepositReceipt{}, err
	}
	if err = s.requireNetworkID(); err != nil {
		err = s.mapError(err)
		return DepositReceipt{}, err
	}

	// The first-deposit asset registration commits before custody is taken,
	// so a capsule replayed later always resolves its asset.
	err = s.updateThen(ctx, func(state *BridgeState) (sideEffect, error) {
		if err := requireInitialized(*state); err != nil {
			return nil, err
		}
		counterpart := state.Principals.CounterpartBridge
		destinations := []string{}
		if state.Protocols != nil {
			destinations = cloneStrings(state.Protocols.Destinations)
		}
		fields["network"] = counterpart.Network

		fee, err := s.transport.GetFee(ctx, counterpart.Network, true, destinations)
		if err != nil {
			return nil, externalError(err, "core: transport fee quote failed", map[string]any{"network": counterpart.Network})
		}
		if fee == nil {
			fee = new(big.Int)
		}

		amount, charged, err := depositAmounts(asset, req.Value, req.Fee, fee)
		if err != nil {
			return nil, err
		}

		assetID, err := s.depositAssetID(state, asset)
		if err != nil {
			return nil, err
		}
		fields["asset_id"] = assetID

		recipient := strings.TrimSpace(req.Recipient)
		if recipient == "" {
			recipient = NewNetworkAddress(s.config.NetworkID, sender).String()
		}

		data, err := codec.Encode(codec.Deposit{
			AssetID:   assetID,
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Data:      req.Data,
		})
		if err != nil {
			return nil, err
		}
		rollback, err := codec.Encode(codec.DepositRevert{
			AssetID: assetID,
			Sender:  sender,
			Amount:  amount,
		})
		if err != nil {
			return nil, err
		}
		send := SendRequest{
			From:         sender,
			To:           counterpart,
			Data:         data,
			Rollback:     rollback,
			Sources:      destinations,
			Destinations: destinations,
			Fee:          cloneAmount(charged),
		}

		return func(ctx context.Context) error {
			debits, err := s.takeCustody(ctx, sender, asset, req.Value, charged)
			if err != nil {
				return err
			}
			sn, err := s.transport.SendCallMessage(ctx, send)
			if err != nil {
				sendErr := externalError(err, "core: transport send failed", map[string]any{"network": counterpart.Network})
				if refundErr := s.releaseCustody(ctx, sender, debits); refundErr != nil {
					return errors.Join(sendErr, refundErr)
				}
				return sendErr
			}

			fields["serial_number"] = sn
			receipt = DepositReceipt{
				SerialNumber: sn,
				AssetID:      assetID,
				Amount:       cloneAmount(amount),
				Fee:          cloneAmount(charged),
				Destinations: cloneStrings(destinations),
			}
			return nil
		}, nil
	})
	if err != nil {
		return DepositReceipt{}, err
	}
	return receipt, nil
}

// depositAmounts returns the amount credited remotely and the native fee
// charged to the sender. Native deposits pay the fee out of the value;
// token deposits pay it from the separately supplied fee.
func depositAmounts(asset Asset, value *big.Int, suppliedFee *big.Int, fee *big.Int) (*big.Int, *big.Int, error) {
	if asset.Native {
		amount := new(big.Int).Sub(value, fee)
		if amount.Sign() <= 0 {
			return nil, nil, valueError("core: fee exceeds the supplied value", map[string]any{
				"value": value.String(),
				"fee":   fee.String(),
			})
		}
		return amount, new(big.Int).Set(fee), nil
	}
	if suppliedFee == nil {
		suppliedFee = new(big.Int)
	}
	if suppliedFee.Sign() < 0 || suppliedFee.Cmp(fee) < 0 {
		return nil, nil, valueError("core: supplied fee does not cover the transport fee", map[string]any{
			"supplied_fee": suppliedFee.String(),
			"fee":          fee.String(),
		})
	}
	return new(big.Int).Set(value), new(big.Int).Set(suppliedFee), nil
}

// depositAssetID resolves the wire id of a local asset, registering
// network/handle on a token's first deposit.
func (s *Service) depositAssetID(state *BridgeState, asset Asset) (string, error) {
	if asset.Native {
		return NewNetworkAddress(s.config.NetworkID, NativeAssetHandle).String(), nil
	}
	if remoteID, ok := state.Assets.Remote(asset.Handle); ok {
		return remoteID, nil
	}
	remoteID := NewNetworkAddress(s.config.NetworkID, asset.Handle).String()
	if err := state.RegisterAsset(remoteID, asset.Handle); err != nil {
		return "", configurationError(err.Error(), map[string]any{"asset": asset.Handle})
	}
	return remoteID, nil
}

type custodyDebit struct {
	asset  Asset
	amount *big.Int
}

func (s *Service) takeCustody(ctx context.Context, sender string, asset Asset, value *big.Int, fee *big.Int) ([]custodyDebit, error) {
	debits := []custodyDebit{{asset: asset, amount: value}}
	if !asset.Native && fee.Sign() > 0 {
		debits = append(debits, custodyDebit{asset: NativeAsset(), amount: fee})
	}
	taken := make([]custodyDebit, 0, len(debits))
	for _, debit := range debits {
		if err := s.ledger.Debit(ctx, sender, debit.asset, cloneAmount(debit.amount)); err != nil {
			debitErr := externalError(err, "core: asset ledger debit failed", map[string]any{"asset": debit.asset.Handle})
			if refundErr := s.releaseCustody(ctx, sender, taken); refundErr != nil {
				return nil, errors.Join(debitErr, refundErr)
			}
			return nil, debitErr
		}
		taken = append(taken, debit)
	}
	return taken, nil
}

func (s *Service) releaseCustody(ctx context.Context, sender string, debits []custodyDebit) error {
	var errs []error
	for _, debit := range debits {
		if err := s.ledger.Credit(ctx, sender, debit.asset, cloneAmount(debit.amount)); err != nil {
			errs = append(errs, externalError(err, "core: asset ledger refund failed", map[string]any{"asset": debit.asset.Handle}))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) handleWithdraw(
	state *BridgeState,
	msg CallMessage,
	method string,
	assetID string,
	recipient string,
	amount *big.Int,
) (sideEffect, error) {
	if !msg.From.Equal(state.Principals.CounterpartBridge) {
		return nil, unauthorizedCaller("counterpart bridge", msg.From.String())
	}
	if err := NewProtocolGuard(state).Verify(msg.Delivered); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, valueError("core: withdraw amount must be positive", map[string]any{"method": method})
	}
	asset, err := s.resolveAsset(*state, assetID)
	if err != nil {
		return nil, err
	}
	account, err := s.localAccount(recipient)
	if err != nil {
		return nil, err
	}
	return s.credit(account, asset, amount, assetID, "core: asset ledger credit failed")
}

func (s *Service) handleDepositRollback(
	state *BridgeState,
	msg CallMessage,
	capsule codec.DepositRevert,
) (sideEffect, error) {
	if err := s.requireNetworkID(); err != nil {
		return nil, err
	}
	if !msg.From.Equal(s.localEndpoint(*state)) {
		return nil, unauthorizedCaller("local transport endpoint", msg.From.String())
	}
	if capsule.Amount == nil || capsule.Amount.Sign() <= 0 {
		return nil, valueError("core: rollback amount must be positive", nil)
	}
	asset, err := s.resolveAsset(*state, capsule.AssetID)
	if err != nil {
		return nil, err
	}
	sender := strings.TrimSpace(capsule.Sender)
	if sender == "" {
		return nil, valueError("core: rollback sender is required", nil)
	}
	return s.credit(sender, asset, capsule.Amount, capsule.AssetID, "core: asset ledger refund failed")
}

// credit plans a ledger payout that runs after the commit.
func (s *Service) credit(account string, asset Asset, amount *big.Int, assetID string, failure string) (sideEffect, error) {
	if s.ledger == nil {
		return nil, configurationError("core: asset ledger is not configured", nil)
	}
	amount = cloneAmount(amount)
	return func(ctx context.Context) error {
		if err := s.ledger.Credit(ctx, account, asset, amount); err != nil {
			return externalError(err, failure, map[string]any{"asset_id": assetID})
		}
		return nil
	}, nil
}

// RegisterAsset maps a chain-qualified asset id to a local handle. Existing
// mappings are never replaced.
func (s *Service) RegisterAsset(ctx context.Context, caller string, remoteID string, localHandle string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"caller": caller, "asset_id": remoteID, "asset": localHandle}
	defer func() {
		s.observeOperation(ctx, startedAt, "register_asset", err, fields)
	}()

	err = s.update(ctx, func(state *BridgeState) error {
		if err := requireOwner(*state, caller); err != nil {
			return err
		}
		if IsNativeHandle(localHandle) {
			return valueError("core: the native handle cannot be registered as a token", nil)
		}
		if _, parseErr := ParseNetworkAddress(remoteID); parseErr != nil {
			return valueError("core: asset id must be chain-qualified", map[string]any{"reason": parseErr.Error()})
		}
		if regErr := state.RegisterAsset(remoteID, localHandle); regErr != nil {
			return configurationError(regErr.Error(), nil)
		}
		return nil
	})
	return err
}

func (s *Service) ResolveAsset(ctx context.Context, remoteID string) (Asset, error) {
	state, err := s.load(ctx)
	if err != nil {
		return Asset{}, err
	}
	asset, err := s.resolveAsset(state, remoteID)
	if err != nil {
		return Asset{}, s.mapError(err)
	}
	return asset, nil
}

func (s *Service) resolveAsset(state BridgeState, remoteID string) (Asset, error) {
	remoteID = strings.TrimSpace(remoteID)
	if handle, ok := state.Assets.Local(remoteID); ok {
		return TokenAsset(handle), nil
	}
	if strings.EqualFold(remoteID, NativeAssetHandle) {
		return NativeAsset(), nil
	}
	// An id on this network names its local handle directly, unless that
	// handle is already mapped to a different id.
	if addr, err := ParseNetworkAddress(remoteID); err == nil && addr.Network == strings.TrimSpace(s.config.NetworkID) {
		if IsNativeHandle(addr.Account) {
			return NativeAsset(), nil
		}
		if mapped, ok := state.Assets.Remote(addr.Account); !ok || mapped == remoteID {
			return TokenAsset(addr.Account), nil
		}
	}
	return Asset{}, configurationError("core: unknown asset", map[string]any{"asset_id": remoteID})
}

// localAccount accepts a bare local address or one qualified with this
// chain's network id.
func (s *Service) localAccount(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", valueError("core: recipient is required", nil)
	}
	if !strings.Contains(recipient, "/") {
		return recipient, nil
	}
	addr, err := ParseNetworkAddress(recipient)
	if err != nil {
		return "", valueError("core: recipient is invalid", map[string]any{"reason": err.Error()})
	}
	if addr.Network != strings.TrimSpace(s.config.NetworkID) {
		return "", valueError("core: recipient belongs to another network", map[string]any{"recipient": recipient})
	}
	return addr.Account, nil
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return ""
	}
	return amount.String()
}
