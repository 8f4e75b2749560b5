package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-xbridge/core"
)

var (
	_ gocmd.Querier[GetProtocolsMessage, core.ProtocolConfig] = (*GetProtocolsQuery)(nil)
	_ gocmd.Querier[GetProposedRemovalMessage, string]        = (*GetProposedRemovalQuery)(nil)
	_ gocmd.Querier[GetBridgeStatusMessage, BridgeStatus]     = (*GetBridgeStatusQuery)(nil)
	_ gocmd.Querier[ResolveAssetMessage, core.Asset]          = (*ResolveAssetQuery)(nil)

	_ ProtocolReader = (*core.Service)(nil)
	_ StateReader    = (*core.Service)(nil)
	_ AssetResolver  = (*core.Service)(nil)
)
