package xbridge_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	xbridge "github.com/goliatone/go-xbridge"
	"github.com/goliatone/go-xbridge/codec"
	xcommand "github.com/goliatone/go-xbridge/command"
	"github.com/goliatone/go-xbridge/core"
	xquery "github.com/goliatone/go-xbridge/query"
	sqlstore "github.com/goliatone/go-xbridge/store/sql"
	"github.com/goliatone/go-xbridge/transport"
)

const (
	spokeNetwork = "0x2.eth"
	hubNetwork   = "0x1.icon"
)

func TestDownstreamComposition_ReconfigurationOverLoopbackAndSQL(t *testing.T) {
	ctx := context.Background()
	client, err := sqlstore.Open(ctx, sqlstore.PersistenceConfig{
		Driver:      "sqlite3",
		Server:      fmt.Sprintf("file:xbridge-compose-%d?mode=memory&cache=shared", time.Now().UnixNano()),
		PingTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithBridgeName("spoke-eth"))
	if err != nil {
		t.Fatalf("repository factory: %v", err)
	}

	network := xbridge.NewLoopbackNetwork()
	spokeEP, err := xbridge.LoopbackEndpoint(network, transport.EndpointConfig{
		Network:   spokeNetwork,
		Transport: "0xxcall",
		Sender:    "0xspokebridge",
	})
	if err != nil {
		t.Fatalf("attach spoke: %v", err)
	}
	governance, err := xbridge.LoopbackEndpoint(network, transport.EndpointConfig{
		Network:   hubNetwork,
		Transport: "cxxcall",
		Sender:    "cxgovernance",
	})
	if err != nil {
		t.Fatalf("attach hub: %v", err)
	}

	svc, err := xbridge.NewService(
		xbridge.Config{Name: "spoke-eth", NetworkID: spokeNetwork},
		xbridge.WithPersistenceClient(client),
		xbridge.WithRepositoryFactory(factory),
		xbridge.WithTransport(spokeEP),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := xbridge.BindInbound(spokeEP, svc, factory.DeliveryClaimStore()); err != nil {
		t.Fatalf("bind inbound: %v", err)
	}

	facade, err := xbridge.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if err := facade.Commands().Initialize.Execute(ctx, xcommand.InitializeMessage{
		Caller: "0xowner",
		Params: core.InitParams{
			Version:           "v1",
			Transport:         "0xxcall",
			Counterpart:       core.NewNetworkAddress(hubNetwork, "cxgovernance"),
			CounterpartBridge: core.NewNetworkAddress(hubNetwork, "cxassetmanager"),
			Protocols: &core.ProtocolConfig{
				Sources:      []string{"relayA", "relayB"},
				Destinations: []string{"d1"},
			},
		},
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	reconfigure, err := codec.Encode(codec.ConfigureProtocols{Sources: []string{"relayC"}, Destinations: []string{"d2"}})
	if err != nil {
		t.Fatalf("encode configureProtocols: %v", err)
	}
	send := core.SendRequest{
		From:         "cxgovernance",
		To:           core.NewNetworkAddress(spokeNetwork, "0xspokebridge"),
		Data:         reconfigure,
		Sources:      []string{"relayA", "relayB"},
		Destinations: []string{"relayA", "relayB"},
		Fee:          big.NewInt(0),
	}

	// relayB is down, so only relayA attests and unanimity is not met.
	network.Drop("relayB")
	if _, err := governance.SendCallMessage(ctx, send); err != nil {
		t.Fatalf("send partial reconfiguration: %v", err)
	}
	if err := network.Flush(ctx); !core.IsProtocolMismatch(err) {
		t.Fatalf("expected protocol mismatch for partial delivery, got %v", err)
	}
	unchanged, err := facade.Queries().GetProtocols.Query(ctx, xquery.GetProtocolsMessage{})
	if err != nil {
		t.Fatalf("get protocols: %v", err)
	}
	if len(unchanged.Sources) != 2 || unchanged.Destinations[0] != "d1" {
		t.Fatalf("expected config unchanged after mismatch, got %#v", unchanged)
	}
	status, attempts, err := factory.DeliveryClaimStore().Status(ctx, "spoke-eth:"+hubNetwork+":1")
	if err != nil {
		t.Fatalf("claim status: %v", err)
	}
	if status != "retry_ready" || attempts != 1 {
		t.Fatalf("expected released claim after failed delivery, got %s/%d", status, attempts)
	}

	// With relayB proposed for removal the same partial delivery is accepted.
	if err := facade.Commands().ProposeRemoval.Execute(ctx, xcommand.ProposeRemovalMessage{
		Caller:  "0xowner",
		RelayID: "relayB",
	}); err != nil {
		t.Fatalf("propose removal: %v", err)
	}
	if _, err := governance.SendCallMessage(ctx, send); err != nil {
		t.Fatalf("send removal reconfiguration: %v", err)
	}
	if err := network.Flush(ctx); err != nil {
		t.Fatalf("flush removal reconfiguration: %v", err)
	}
	network.Restore("relayB")

	restarted, err := xbridge.NewService(
		xbridge.Config{Name: "spoke-eth", NetworkID: spokeNetwork},
		xbridge.WithPersistenceClient(client),
		xbridge.WithRepositoryFactory(sqlstore.NewRepositoryFactory(sqlstore.WithBridgeName("spoke-eth"))),
	)
	if err != nil {
		t.Fatalf("restart service: %v", err)
	}
	restartedFacade, err := xbridge.NewFacade(restarted)
	if err != nil {
		t.Fatalf("restart facade: %v", err)
	}
	bridgeStatus, err := restartedFacade.Queries().GetBridgeStatus.Query(ctx, xquery.GetBridgeStatusMessage{})
	if err != nil {
		t.Fatalf("bridge status: %v", err)
	}
	if len(bridgeStatus.Sources) != 1 || bridgeStatus.Sources[0] != "relayC" {
		t.Fatalf("expected persisted sources [relayC], got %v", bridgeStatus.Sources)
	}
	if len(bridgeStatus.Destinations) != 1 || bridgeStatus.Destinations[0] != "d2" {
		t.Fatalf("expected persisted destinations [d2], got %v", bridgeStatus.Destinations)
	}
	if bridgeStatus.ProposedRemoval != "" || bridgeStatus.GuardState != core.GuardStable || bridgeStatus.Version != "v1" {
		t.Fatalf("unexpected restarted status: %#v", bridgeStatus)
	}

	status, _, err = factory.DeliveryClaimStore().Status(ctx, "spoke-eth:"+hubNetwork+":2")
	if err != nil {
		t.Fatalf("claim status: %v", err)
	}
	if status != "complete" {
		t.Fatalf("expected completed claim, got %s", status)
	}
}
