package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-xbridge/core"
)

// MutatingService is the write side of core.Service.
type MutatingService interface {
	Initialize(ctx context.Context, caller string, params core.InitParams) error
	HandleCallMessage(ctx context.Context, msg core.CallMessage) error
	Deposit(ctx context.Context, req core.DepositRequest) (core.DepositReceipt, error)
	ProposeRemoval(ctx context.Context, caller string, relayID string) error
	ClearProposedRemoval(ctx context.Context, caller string) error
	SetAdmin(ctx context.Context, caller string, admin string) error
	SetTransport(ctx context.Context, caller string, transport string) error
	SetCounterpart(ctx context.Context, caller string, counterpart core.NetworkAddress) error
	SetCounterpartBridge(ctx context.Context, caller string, counterpart core.NetworkAddress) error
	RegisterAsset(ctx context.Context, caller string, remoteID string, localHandle string) error
}

type InitializeCommand struct {
	service MutatingService
}

func NewInitializeCommand(service MutatingService) *InitializeCommand {
	return &InitializeCommand{service: service}
}

func (c *InitializeCommand) Execute(ctx context.Context, msg InitializeMessage) error {
	if c == nil || c.service == nil {
		return missingService("initialize")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.Initialize(ctx, msg.Caller, msg.Params)
}

type DepositCommand struct {
	service MutatingService
}

func NewDepositCommand(service MutatingService) *DepositCommand {
	return &DepositCommand{service: service}
}

func (c *DepositCommand) Execute(ctx context.Context, msg DepositMessage) error {
	if c == nil || c.service == nil {
		return missingService("deposit")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Deposit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type HandleCallMessageCommand struct {
	service MutatingService
}

func NewHandleCallMessageCommand(service MutatingService) *HandleCallMessageCommand {
	return &HandleCallMessageCommand{service: service}
}

func (c *HandleCallMessageCommand) Execute(ctx context.Context, msg HandleCallMessage) error {
	if c == nil || c.service == nil {
		return missingService("call message")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.HandleCallMessage(ctx, msg.Message)
}

type ProposeRemovalCommand struct {
	service MutatingService
}

func NewProposeRemovalCommand(service MutatingService) *ProposeRemovalCommand {
	return &ProposeRemovalCommand{service: service}
}

func (c *ProposeRemovalCommand) Execute(ctx context.Context, msg ProposeRemovalMessage) error {
	if c == nil || c.service == nil {
		return missingService("propose removal")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.ProposeRemoval(ctx, msg.Caller, msg.RelayID)
}

type ClearProposedRemovalCommand struct {
	service MutatingService
}

func NewClearProposedRemovalCommand(service MutatingService) *ClearProposedRemovalCommand {
	return &ClearProposedRemovalCommand{service: service}
}

func (c *ClearProposedRemovalCommand) Execute(ctx context.Context, msg ClearProposedRemovalMessage) error {
	if c == nil || c.service == nil {
		return missingService("clear proposed removal")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.ClearProposedRemoval(ctx, msg.Caller)
}

type SetAdminCommand struct {
	service MutatingService
}

func NewSetAdminCommand(service MutatingService) *SetAdminCommand {
	return &SetAdminCommand{service: service}
}

func (c *SetAdminCommand) Execute(ctx context.Context, msg SetAdminMessage) error {
	if c == nil || c.service == nil {
		return missingService("admin")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.SetAdmin(ctx, msg.Caller, msg.Admin)
}

type SetTransportCommand struct {
	service MutatingService
}

func NewSetTransportCommand(service MutatingService) *SetTransportCommand {
	return &SetTransportCommand{service: service}
}

func (c *SetTransportCommand) Execute(ctx context.Context, msg SetTransportMessage) error {
	if c == nil || c.service == nil {
		return missingService("transport")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.SetTransport(ctx, msg.Caller, msg.Transport)
}

type SetCounterpartCommand struct {
	service MutatingService
}

func NewSetCounterpartCommand(service MutatingService) *SetCounterpartCommand {
	return &SetCounterpartCommand{service: service}
}

func (c *SetCounterpartCommand) Execute(ctx context.Context, msg SetCounterpartMessage) error {
	if c == nil || c.service == nil {
		return missingService("counterpart")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.SetCounterpart(ctx, msg.Caller, msg.Counterpart)
}

type SetCounterpartBridgeCommand struct {
	service MutatingService
}

func NewSetCounterpartBridgeCommand(service MutatingService) *SetCounterpartBridgeCommand {
	return &SetCounterpartBridgeCommand{service: service}
}

func (c *SetCounterpartBridgeCommand) Execute(ctx context.Context, msg SetCounterpartBridgeMessage) error {
	if c == nil || c.service == nil {
		return missingService("counterpart bridge")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.SetCounterpartBridge(ctx, msg.Caller, msg.Counterpart)
}

type RegisterAssetCommand struct {
	service MutatingService
}

func NewRegisterAssetCommand(service MutatingService) *RegisterAssetCommand {
	return &RegisterAssetCommand{service: service}
}

func (c *RegisterAssetCommand) Execute(ctx context.Context, msg RegisterAssetMessage) error {
	if c == nil || c.service == nil {
		return missingService("asset registration")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.RegisterAsset(ctx, msg.Caller, msg.RemoteID, msg.LocalHandle)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
