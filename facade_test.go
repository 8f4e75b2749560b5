package xbridge

import (
	"context"
	"math/big"
	"testing"

	xcommand "github.com/goliatone/go-xbridge/command"
	"github.com/goliatone/go-xbridge/core"
	xquery "github.com/goliatone/go-xbridge/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Initialize == nil || commands.Deposit == nil || commands.HandleCallMessage == nil {
		t.Fatalf("expected core command handlers to be wired")
	}
	if commands.ProposeRemoval == nil || commands.ClearProposedRemoval == nil || commands.RegisterAsset == nil {
		t.Fatalf("expected admin command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetProtocols == nil || queries.GetBridgeStatus == nil || queries.ResolveAsset == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() == nil {
		t.Fatalf("expected facade to expose its service")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().ProposeRemoval.Execute(context.Background(), xcommand.ProposeRemovalMessage{
		Caller:  "0xadmin",
		RelayID: "relayB",
	}); err != nil {
		t.Fatalf("execute propose removal: %v", err)
	}
	if svc.lastCaller != "0xadmin" || svc.proposed != "relayB" {
		t.Fatalf("unexpected propose removal delegation: %#v", svc)
	}

	proposed, err := facade.Queries().GetProposedRemoval.Query(context.Background(), xquery.GetProposedRemovalMessage{})
	if err != nil {
		t.Fatalf("query proposed removal: %v", err)
	}
	if proposed != "relayB" {
		t.Fatalf("expected proposed relayB, got %q", proposed)
	}

	status, err := facade.Queries().GetBridgeStatus.Query(context.Background(), xquery.GetBridgeStatusMessage{})
	if err != nil {
		t.Fatalf("query bridge status: %v", err)
	}
	if status.Name != "facade-bridge" || status.Version != "v3" || status.GuardState != core.GuardRemovalProposed {
		t.Fatalf("unexpected bridge status: %#v", status)
	}
}

func TestFacade_BuildsExtensionBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("relay-ops", func(service CommandQueryService) (any, error) {
		return service.Name() + ":relay-ops", nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}

	facade, err := NewFacade(&stubFacadeService{}, WithExtensionHooks(hooks))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	bundle, ok := facade.Bundle("relay-ops")
	if !ok || bundle != "facade-bridge:relay-ops" {
		t.Fatalf("unexpected bundle: %v %v", bundle, ok)
	}
	if _, ok := facade.Bundle("missing"); ok {
		t.Fatalf("expected missing bundle lookup to fail")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastCaller string
	proposed   string
}

func (s *stubFacadeService) Initialize(_ context.Context, caller string, _ core.InitParams) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) HandleCallMessage(context.Context, core.CallMessage) error {
	return nil
}

func (s *stubFacadeService) Deposit(_ context.Context, req core.DepositRequest) (core.DepositReceipt, error) {
	return core.DepositReceipt{SerialNumber: 1, Amount: new(big.Int).Set(req.Value), Fee: big.NewInt(0)}, nil
}

func (s *stubFacadeService) ProposeRemoval(_ context.Context, caller string, relayID string) error {
	s.lastCaller = caller
	s.proposed = relayID
	return nil
}

func (s *stubFacadeService) ClearProposedRemoval(_ context.Context, caller string) error {
	s.lastCaller = caller
	s.proposed = ""
	return nil
}

func (s *stubFacadeService) SetAdmin(_ context.Context, caller string, _ string) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) SetTransport(_ context.Context, caller string, _ string) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) SetCounterpart(_ context.Context, caller string, _ core.NetworkAddress) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) SetCounterpartBridge(_ context.Context, caller string, _ core.NetworkAddress) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) RegisterAsset(_ context.Context, caller string, _ string, _ string) error {
	s.lastCaller = caller
	return nil
}

func (s *stubFacadeService) GetProtocols(context.Context) (core.ProtocolConfig, error) {
	return core.ProtocolConfig{Sources: []string{"relayA", "relayB"}, Destinations: []string{"relayA"}}, nil
}

func (s *stubFacadeService) GetProposedRemoval(context.Context) (string, error) {
	return s.proposed, nil
}

func (s *stubFacadeService) Name() string {
	return "facade-bridge"
}

func (s *stubFacadeService) State(context.Context) (core.BridgeState, error) {
	state := core.NewBridgeState()
	state.Version = "v3"
	state.Protocols = &core.ProtocolConfig{Sources: []string{"relayA", "relayB"}, Destinations: []string{"relayA"}}
	state.ProposedRemoval = s.proposed
	return state, nil
}

func (s *stubFacadeService) ResolveAsset(_ context.Context, remoteID string) (core.Asset, error) {
	return core.TokenAsset(remoteID), nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
