package query

import (
	"context"

	"github.com/goliatone/go-xbridge/core"
)

type ProtocolReader interface {
	GetProtocols(ctx context.Context) (core.ProtocolConfig, error)
	GetProposedRemoval(ctx context.Context) (string, error)
}

type StateReader interface {
	Name() string
	State(ctx context.Context) (core.BridgeState, error)
}

type AssetResolver interface {
	ResolveAsset(ctx context.Context, remoteID string) (core.Asset, error)
}

type GetProtocolsQuery struct {
	reader ProtocolReader
}

func NewGetProtocolsQuery(reader ProtocolReader) *GetProtocolsQuery {
	return &GetProtocolsQuery{reader: reader}
}

func (q *GetProtocolsQuery) Query(ctx context.Context, _ GetProtocolsMessage) (core.ProtocolConfig, error) {
	if q == nil || q.reader == nil {
		return core.ProtocolConfig{}, missingReader("protocol reader")
	}
	return q.reader.GetProtocols(ctx)
}

type GetProposedRemovalQuery struct {
	reader ProtocolReader
}

func NewGetProposedRemovalQuery(reader ProtocolReader) *GetProposedRemovalQuery {
	return &GetProposedRemovalQuery{reader: reader}
}

func (q *GetProposedRemovalQuery) Query(ctx context.Context, _ GetProposedRemovalMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", missingReader("protocol reader")
	}
	return q.reader.GetProposedRemoval(ctx)
}

type GetBridgeStatusQuery struct {
	reader StateReader
}

func NewGetBridgeStatusQuery(reader StateReader) *GetBridgeStatusQuery {
	return &GetBridgeStatusQuery{reader: reader}
}

func (q *GetBridgeStatusQuery) Query(ctx context.Context, _ GetBridgeStatusMessage) (BridgeStatus, error) {
	if q == nil || q.reader == nil {
		return BridgeStatus{}, missingReader("state reader")
	}
	state, err := q.reader.State(ctx)
	if err != nil {
		return BridgeStatus{}, err
	}
	return statusFromState(q.reader.Name(), state), nil
}

type ResolveAssetQuery struct {
	resolver AssetResolver
}

func NewResolveAssetQuery(resolver AssetResolver) *ResolveAssetQuery {
	return &ResolveAssetQuery{resolver: resolver}
}

func (q *ResolveAssetQuery) Query(ctx context.Context, msg ResolveAssetMessage) (core.Asset, error) {
	if q == nil || q.resolver == nil {
		return core.Asset{}, missingReader("asset resolver")
	}
	if err := msg.Validate(); err != nil {
		return core.Asset{}, err
	}
	return q.resolver.ResolveAsset(ctx, msg.RemoteID)
}

func statusFromState(name string, state core.BridgeState) BridgeStatus {
	status := BridgeStatus{
		Name:              name,
		Version:           state.Version,
		Initialized:       state.Initialized(),
		Owner:             state.Principals.Owner,
		Admin:             state.Principals.Admin,
		Transport:         state.Principals.Transport,
		Counterpart:       state.Principals.Counterpart.String(),
		CounterpartBridge: state.Principals.CounterpartBridge.String(),
		Configured:        state.Protocols != nil,
		Sources:           []string{},
		Destinations:      []string{},
		ProposedRemoval:   state.ProposedRemoval,
		GuardState:        core.NewProtocolGuard(&state).State(),
		Assets:            state.Assets.Entries(),
	}
	if state.Protocols != nil {
		cfg := state.Protocols.Clone()
		status.Sources = cfg.Sources
		status.Destinations = cfg.Destinations
	}
	return status
}
