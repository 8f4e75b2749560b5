package sqlstore

import "github.com/goliatone/go-xbridge/core"

var (
	_ core.StateStore             = (*StateStore)(nil)
	_ core.StateStore             = (*CachedStateStore)(nil)
	_ core.IdempotencyClaimStore  = (*DeliveryClaimStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
