package command

import (
	"strings"

	"github.com/goliatone/go-xbridge/core"
)

const (
	TypeInitialize           = "xbridge.command.initialize"
	TypeDeposit              = "xbridge.command.deposit"
	TypeHandleCallMessage    = "xbridge.command.call_message.handle"
	TypeProposeRemoval       = "xbridge.command.protocols.propose_removal"
	TypeClearProposedRemoval = "xbridge.command.protocols.clear_proposed_removal"
	TypeSetAdmin             = "xbridge.command.admin.set"
	TypeSetTransport         = "xbridge.command.transport.set"
	TypeSetCounterpart       = "xbridge.command.counterpart.set"
	TypeSetCounterpartBridge = "xbridge.command.counterpart_bridge.set"
	TypeRegisterAsset        = "xbridge.command.asset.register"
)

type InitializeMessage struct {
	Caller string
	Params core.InitParams
}

func (InitializeMessage) Type() string { return TypeInitialize }

func (m InitializeMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if strings.TrimSpace(m.Params.Version) == "" {
		return invalidField("version", "version is required", nil)
	}
	return nil
}

type DepositMessage struct {
	Request core.DepositRequest
}

func (DepositMessage) Type() string { return TypeDeposit }

func (m DepositMessage) Validate() error {
	if strings.TrimSpace(m.Request.Sender) == "" {
		return invalidField("sender", "sender is required", nil)
	}
	if m.Request.Value == nil || m.Request.Value.Sign() <= 0 {
		return invalidField("value", "value must be positive", nil)
	}
	if m.Request.Fee != nil && m.Request.Fee.Sign() < 0 {
		return invalidField("fee", "fee must not be negative", nil)
	}
	return nil
}

type HandleCallMessage struct {
	Message core.CallMessage
}

func (HandleCallMessage) Type() string { return TypeHandleCallMessage }

func (m HandleCallMessage) Validate() error {
	if err := requireCaller(m.Message.Caller); err != nil {
		return err
	}
	if err := m.Message.From.Validate(); err != nil {
		return invalidField("from", "call message origin is invalid", err)
	}
	if len(m.Message.Data) == 0 {
		return invalidField("data", "call message data is required", nil)
	}
	return nil
}

type ProposeRemovalMessage struct {
	Caller  string
	RelayID string
}

func (ProposeRemovalMessage) Type() string { return TypeProposeRemoval }

func (m ProposeRemovalMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if strings.TrimSpace(m.RelayID) == "" {
		return invalidField("relay_id", "relay id is required", nil)
	}
	return nil
}

type ClearProposedRemovalMessage struct {
	Caller string
}

func (ClearProposedRemovalMessage) Type() string { return TypeClearProposedRemoval }

func (m ClearProposedRemovalMessage) Validate() error {
	return requireCaller(m.Caller)
}

type SetAdminMessage struct {
	Caller string
	Admin  string
}

func (SetAdminMessage) Type() string { return TypeSetAdmin }

func (m SetAdminMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if strings.TrimSpace(m.Admin) == "" {
		return invalidField("admin", "admin is required", nil)
	}
	return nil
}

type SetTransportMessage struct {
	Caller    string
	Transport string
}

func (SetTransportMessage) Type() string { return TypeSetTransport }

func (m SetTransportMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if strings.TrimSpace(m.Transport) == "" {
		return invalidField("transport", "transport is required", nil)
	}
	return nil
}

type SetCounterpartMessage struct {
	Caller      string
	Counterpart core.NetworkAddress
}

func (SetCounterpartMessage) Type() string { return TypeSetCounterpart }

func (m SetCounterpartMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if err := m.Counterpart.Validate(); err != nil {
		return invalidField("counterpart", "counterpart is invalid", err)
	}
	return nil
}

type SetCounterpartBridgeMessage struct {
	Caller      string
	Counterpart core.NetworkAddress
}

func (SetCounterpartBridgeMessage) Type() string { return TypeSetCounterpartBridge }

func (m SetCounterpartBridgeMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if err := m.Counterpart.Validate(); err != nil {
		return invalidField("counterpart", "counterpart bridge is invalid", err)
	}
	return nil
}

type RegisterAssetMessage struct {
	Caller      string
	RemoteID    string
	LocalHandle string
}

func (RegisterAssetMessage) Type() string { return TypeRegisterAsset }

func (m RegisterAssetMessage) Validate() error {
	if err := requireCaller(m.Caller); err != nil {
		return err
	}
	if strings.TrimSpace(m.RemoteID) == "" {
		return invalidField("remote_id", "remote asset id is required", nil)
	}
	if strings.TrimSpace(m.LocalHandle) == "" {
		return invalidField("local_handle", "local handle is required", nil)
	}
	return nil
}

func requireCaller(caller string) error {
	if strings.TrimSpace(caller) == "" {
		return invalidField("caller", "caller is required", nil)
	}
	return nil
}
