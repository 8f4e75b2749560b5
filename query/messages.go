package query

import (
	"strings"

	"github.com/goliatone/go-xbridge/core"
)

const (
	TypeGetProtocols       = "xbridge.query.protocols.get"
	TypeGetProposedRemoval = "xbridge.query.protocols.proposed_removal"
	TypeGetBridgeStatus    = "xbridge.query.status.get"
	TypeResolveAsset       = "xbridge.query.asset.resolve"
)

type GetProtocolsMessage struct{}

func (GetProtocolsMessage) Type() string { return TypeGetProtocols }

type GetProposedRemovalMessage struct{}

func (GetProposedRemovalMessage) Type() string { return TypeGetProposedRemoval }

type GetBridgeStatusMessage struct{}

func (GetBridgeStatusMessage) Type() string { return TypeGetBridgeStatus }

type ResolveAssetMessage struct {
	RemoteID string
}

func (ResolveAssetMessage) Type() string { return TypeResolveAsset }

func (m ResolveAssetMessage) Validate() error {
	if strings.TrimSpace(m.RemoteID) == "" {
		return invalidRemoteID("remote asset id is required", nil)
	}
	if _, err := core.ParseNetworkAddress(m.RemoteID); err != nil {
		return invalidRemoteID("remote asset id is invalid", err)
	}
	return nil
}

// BridgeStatus is a read-only view over the bridge aggregate.
type BridgeStatus struct {
	Name              string
	Version           string
	Initialized       bool
	Owner             string
	Admin             string
	Transport         string
	Counterpart       string
	CounterpartBridge string
	Configured        bool
	Sources           []string
	Destinations      []string
	ProposedRemoval   string
	GuardState        core.GuardState
	Assets            []core.AssetMapping
}
