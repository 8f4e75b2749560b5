package xbridge

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-xbridge/core"
	"github.com/goliatone/go-xbridge/inbound"
	"github.com/goliatone/go-xbridge/transport"
)

func NewLoopbackNetwork(opts ...transport.LoopbackOption) *transport.Loopback {
	return transport.NewLoopback(opts...)
}

// NewTransportRegistry returns a registry with the loopback factory bound to
// network. Hosts register adapters for real relay networks themselves.
func NewTransportRegistry(network *transport.Loopback) *transport.Registry {
	return transport.NewDefaultRegistry(network)
}

// LoopbackEndpoint attaches cfg to network, or returns the endpoint already
// attached for cfg.Network.
func LoopbackEndpoint(network *transport.Loopback, cfg transport.EndpointConfig) (*transport.Endpoint, error) {
	if network == nil {
		return nil, fmt.Errorf("xbridge: loopback network is required")
	}
	if existing, ok := network.Endpoint(strings.TrimSpace(cfg.Network)); ok {
		return existing, nil
	}
	return network.Attach(cfg)
}

// BindInbound routes the endpoint's inbound deliveries through a dispatcher
// that verifies the transport identity and dedupes by delivery id.
func BindInbound(
	endpoint *transport.Endpoint,
	service *core.Service,
	store core.IdempotencyClaimStore,
) (*inbound.Dispatcher, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("xbridge: transport endpoint is required")
	}
	if service == nil {
		return nil, fmt.Errorf("xbridge: bridge service is required")
	}
	if store == nil {
		store = inbound.NewInMemoryClaimStore()
	}
	dispatcher := inbound.NewDispatcher(service, inbound.TransportVerifier{Lookup: service}, store)
	dispatcher.Namespace = service.Name()
	dispatcher.Logger = service.Dependencies().Logger
	if ttl := service.Config().ClaimTTL; ttl > 0 {
		dispatcher.KeyTTL = ttl
	}
	endpoint.Bind(dispatcher)
	return dispatcher, nil
}
