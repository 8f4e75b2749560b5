package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-xbridge/codec"
)

// HandleCallMessage is the inbound entry point invoked by the transport. Any
// failed check leaves state unchanged; ledger payouts and execute payloads
// run only once the state change has committed.
func (s *Service) HandleCallMessage(ctx context.Context, msg CallMessage) (err error) {
	startedAt := s.now()
	fields := map[string]any{
		"caller":      msg.Caller,
		"from":        msg.From.String(),
		"network":     msg.From.Network,
		"delivered":   cloneStrings(msg.Delivered),
		"delivery_id": msg.DeliveryID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_call_message", err, fields)
	}()

	err = s.updateThen(ctx, func(state *BridgeState) (sideEffect, error) {
		if err := requireInitialized(*state); err != nil {
			return nil, err
		}
		if !isPrincipal(state.Principals.Transport, msg.Caller) {
			return nil, unauthorizedCaller("transport", msg.Caller)
		}
		envelope, err := codec.Decode(msg.Data)
		if err != nil {
			return nil, err
		}
		fields["method"] = envelope.Method()

		switch typed := envelope.(type) {
		case codec.ConfigureProtocols, codec.Execute:
			return s.handleConfigurationMessage(state, msg, typed)
		case codec.WithdrawTo:
			fields["asset_id"] = typed.AssetID
			return s.handleWithdraw(state, msg, typed.Method(), typed.AssetID, typed.Recipient, typed.Amount)
		case codec.WithdrawNativeTo:
			fields["asset_id"] = typed.AssetID
			return s.handleWithdraw(state, msg, typed.Method(), typed.AssetID, typed.Recipient, typed.Amount)
		case codec.DepositRevert:
			fields["asset_id"] = typed.AssetID
			return s.handleDepositRollback(state, msg, typed)
		default:
			return nil, configurationError(
				fmt.Sprintf("core: method %q is not accepted inbound", envelope.Method()),
				map[string]any{"method": envelope.Method()},
			)
		}
	})
	return err
}

// handleConfigurationMessage installs a new protocol config or plans an
// execute payload for the executor. The two never occur in one message.
func (s *Service) handleConfigurationMessage(
	state *BridgeState,
	msg CallMessage,
	envelope codec.Envelope,
) (sideEffect, error) {
	if !msg.From.Equal(state.Principals.Counterpart) {
		return nil, unauthorizedCaller("counterpart", msg.From.String())
	}
	guard := NewProtocolGuard(state)
	if err := guard.Authorize(envelope.Method(), msg.Delivered); err != nil {
		return nil, err
	}

	switch typed := envelope.(type) {
	case codec.ConfigureProtocols:
		guard.Install(ProtocolConfig{
			Sources:      typed.Sources,
			Destinations: typed.Destinations,
		})
		return nil, nil
	case codec.Execute:
		if s.executor == nil {
			return nil, configurationError("core: executor is not configured", nil)
		}
		payload := append([]byte(nil), typed.Payload...)
		return func(ctx context.Context) error {
			if err := s.executor.Execute(ctx, payload); err != nil {
				return externalError(err, "core: execute payload failed", nil)
			}
			return nil
		}, nil
	default:
		return nil, configurationError(
			fmt.Sprintf("core: method %q is not an administrative message", envelope.Method()),
			map[string]any{"method": envelope.Method()},
		)
	}
}

// localEndpoint is this chain's own transport identity, the only sender
// allowed to replay rollback capsules.
func (s *Service) localEndpoint(state BridgeState) NetworkAddress {
	return NewNetworkAddress(s.config.NetworkID, state.Principals.Transport)
}

func (s *Service) requireNetworkID() error {
	if strings.TrimSpace(s.config.NetworkID) == "" {
		return configurationError("core: network id is not configured", nil)
	}
	return nil
}
