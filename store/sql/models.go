package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type bridgeStateRecord struct {
	bun.BaseModel `bun:"table:bridge_state,alias:bs"`

	ID                string    `bun:"id,pk"`
	BridgeName        string    `bun:"bridge_name,notnull"`
	Version           string    `bun:"version,notnull"`
	Owner             string    `bun:"owner,notnull"`
	Admin             string    `bun:"admin,notnull"`
	Transport         string    `bun:"transport,notnull"`
	Counterpart       string    `bun:"counterpart,notnull"`
	CounterpartBridge string    `bun:"counterpart_bridge,notnull"`
	Configured        bool      `bun:"configured,notnull"`
	Sources           []string  `bun:"sources,type:jsonb,notnull"`
	Destinations      []string  `bun:"destinations,type:jsonb,notnull"`
	ProposedRemoval   *string   `bun:"proposed_removal"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type bridgeAssetRecord struct {
	bun.BaseModel `bun:"table:bridge_assets,alias:ba"`

	ID          string    `bun:"id,pk"`
	BridgeName  string    `bun:"bridge_name,notnull"`
	RemoteID    string    `bun:"remote_id,notnull"`
	LocalHandle string    `bun:"local_handle,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryClaimRecord struct {
	bun.BaseModel `bun:"table:bridge_delivery_claims,alias:bdc"`

	ID             string     `bun:"id,pk"`
	ClaimKey       string     `bun:"claim_key,notnull"`
	ClaimID        string     `bun:"claim_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	KeyTTLSeconds  int64      `bun:"key_ttl_seconds,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	RetryAt        *time.Time `bun:"retry_at,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
