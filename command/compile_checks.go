package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-xbridge/core"
)

var (
	_ gocmd.Commander[InitializeMessage]           = (*InitializeCommand)(nil)
	_ gocmd.Commander[DepositMessage]              = (*DepositCommand)(nil)
	_ gocmd.Commander[HandleCallMessage]           = (*HandleCallMessageCommand)(nil)
	_ gocmd.Commander[ProposeRemovalMessage]       = (*ProposeRemovalCommand)(nil)
	_ gocmd.Commander[ClearProposedRemovalMessage] = (*ClearProposedRemovalCommand)(nil)
	_ gocmd.Commander[SetAdminMessage]             = (*SetAdminCommand)(nil)
	_ gocmd.Commander[SetTransportMessage]         = (*SetTransportCommand)(nil)
	_ gocmd.Commander[SetCounterpartMessage]       = (*SetCounterpartCommand)(nil)
	_ gocmd.Commander[SetCounterpartBridgeMessage] = (*SetCounterpartBridgeCommand)(nil)
	_ gocmd.Commander[RegisterAssetMessage]        = (*RegisterAssetCommand)(nil)
	_ MutatingService                              = (*core.Service)(nil)
)
