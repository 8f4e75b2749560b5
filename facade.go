package xbridge

import (
	"fmt"

	xcommand "github.com/goliatone/go-xbridge/command"
	xquery "github.com/goliatone/go-xbridge/query"
)

// CommandQueryService is the service surface the facade wraps. core.Service
// satisfies it.
type CommandQueryService interface {
	xcommand.MutatingService
	xquery.ProtocolReader
	xquery.StateReader
	xquery.AssetResolver
}

type Commands struct {
	Initialize           *xcommand.InitializeCommand
	Deposit              *xcommand.DepositCommand
	HandleCallMessage    *xcommand.HandleCallMessageCommand
	ProposeRemoval       *xcommand.ProposeRemovalCommand
	ClearProposedRemoval *xcommand.ClearProposedRemovalCommand
	SetAdmin             *xcommand.SetAdminCommand
	SetTransport         *xcommand.SetTransportCommand
	SetCounterpart       *xcommand.SetCounterpartCommand
	SetCounterpartBridge *xcommand.SetCounterpartBridgeCommand
	RegisterAsset        *xcommand.RegisterAssetCommand
}

type Queries struct {
	GetProtocols       *xquery.GetProtocolsQuery
	GetProposedRemoval *xquery.GetProposedRemovalQuery
	GetBridgeStatus    *xquery.GetBridgeStatusQuery
	ResolveAsset       *xquery.ResolveAssetQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	hooks *ExtensionHooks
}

// WithExtensionHooks builds the hooks' command/query bundles alongside the
// core handlers.
func WithExtensionHooks(hooks *ExtensionHooks) FacadeOption {
	return func(options *facadeOptions) {
		options.hooks = hooks
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("xbridge: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Initialize:           xcommand.NewInitializeCommand(service),
		Deposit:              xcommand.NewDepositCommand(service),
		HandleCallMessage:    xcommand.NewHandleCallMessageCommand(service),
		ProposeRemoval:       xcommand.NewProposeRemovalCommand(service),
		ClearProposedRemoval: xcommand.NewClearProposedRemovalCommand(service),
		SetAdmin:             xcommand.NewSetAdminCommand(service),
		SetTransport:         xcommand.NewSetTransportCommand(service),
		SetCounterpart:       xcommand.NewSetCounterpartCommand(service),
		SetCounterpartBridge: xcommand.NewSetCounterpartBridgeCommand(service),
		RegisterAsset:        xcommand.NewRegisterAssetCommand(service),
	}
	facade.queries = Queries{
		GetProtocols:       xquery.NewGetProtocolsQuery(service),
		GetProposedRemoval: xquery.NewGetProposedRemovalQuery(service),
		GetBridgeStatus:    xquery.NewGetBridgeStatusQuery(service),
		ResolveAsset:       xquery.NewResolveAssetQuery(service),
	}

	bundles, err := cfg.hooks.BuildCommandQueryBundles(service)
	if err != nil {
		return nil, err
	}
	facade.bundles = bundles
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Bundle returns the extension bundle registered under name.
func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}
