package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-xbridge/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StateStore persists one bridge aggregate, keyed by bridge name, across the
// bridge_state and bridge_assets tables.
type StateStore struct {
	db         *bun.DB
	bridgeName string
	stateRepo  repository.Repository[*bridgeStateRecord]
	assetRepo  repository.Repository[*bridgeAssetRecord]
	Now        func() time.Time
}

func NewStateStore(db *bun.DB, bridgeName string) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	bridgeName = strings.TrimSpace(bridgeName)
	if bridgeName == "" {
		return nil, fmt.Errorf("sqlstore: bridge name is required")
	}
	stateRepo := repository.NewRepository[*bridgeStateRecord](db, bridgeStateHandlers())
	if validator, ok := stateRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid bridge state repository wiring: %w", err)
		}
	}
	assetRepo := repository.NewRepository[*bridgeAssetRecord](db, bridgeAssetHandlers())
	if validator, ok := assetRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid bridge asset repository wiring: %w", err)
		}
	}
	return &StateStore{
		db:         db,
		bridgeName: bridgeName,
		stateRepo:  stateRepo,
		assetRepo:  assetRepo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *StateStore) BridgeName() string {
	if s == nil {
		return ""
	}
	return s.bridgeName
}

// Load returns an uninitialized state when the bridge has never been stored.
func (s *StateStore) Load(ctx context.Context) (core.BridgeState, error) {
	if s == nil || s.db == nil {
		return core.BridgeState{}, fmt.Errorf("sqlstore: state store is not configured")
	}
	record, err := findBridgeStateTx(ctx, s.db, s.bridgeName)
	if err != nil {
		return core.BridgeState{}, err
	}
	assets, _, err := s.assetRepo.List(ctx,
		repository.SelectBy("bridge_name", "=", s.bridgeName),
		repository.OrderBy("remote_id ASC"),
	)
	if err != nil {
		return core.BridgeState{}, err
	}
	return bridgeStateToDomain(record, assets)
}

// Update applies fn to the stored state inside one transaction. Nothing is
// written when fn returns an error.
func (s *StateStore) Update(
	ctx context.Context,
	fn func(*core.BridgeState) error,
) (core.BridgeState, error) {
	if s == nil || s.db == nil {
		return core.BridgeState{}, fmt.Errorf("sqlstore: state store is not configured")
	}
	if fn == nil {
		return core.BridgeState{}, fmt.Errorf("sqlstore: update function is required")
	}

	var out core.BridgeState
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findBridgeStateTx(ctx, tx, s.bridgeName)
		if err != nil {
			return err
		}
		assets, err := listBridgeAssetsTx(ctx, tx, s.bridgeName)
		if err != nil {
			return err
		}
		current, err := bridgeStateToDomain(record, assets)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}

		now := s.now()
		if record == nil {
			record = &bridgeStateRecord{
				ID:         uuid.NewString(),
				BridgeName: s.bridgeName,
				CreatedAt:  now,
			}
			applyBridgeState(record, next, now)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return fmt.Errorf("sqlstore: bridge %q was initialized concurrently", s.bridgeName)
				}
				return insertErr
			}
		} else {
			applyBridgeState(record, next, now)
			if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
				return updateErr
			}
		}

		for _, mapping := range next.Assets.Entries() {
			if _, exists := current.Assets.Local(mapping.RemoteID); exists {
				continue
			}
			asset := &bridgeAssetRecord{
				ID:          uuid.NewString(),
				BridgeName:  s.bridgeName,
				RemoteID:    mapping.RemoteID,
				LocalHandle: mapping.LocalHandle,
				CreatedAt:   now,
			}
			if _, createErr := s.assetRepo.CreateTx(ctx, tx, asset); createErr != nil {
				return createErr
			}
		}

		out = next.Clone()
		return nil
	})
	if err != nil {
		return core.BridgeState{}, err
	}
	return out, nil
}

func (s *StateStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func findBridgeStateTx(ctx context.Context, db bun.IDB, bridgeName string) (*bridgeStateRecord, error) {
	record := &bridgeStateRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.bridge_name = ?", bridgeName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func listBridgeAssetsTx(ctx context.Context, db bun.IDB, bridgeName string) ([]*bridgeAssetRecord, error) {
	records := make([]*bridgeAssetRecord, 0)
	err := db.NewSelect().
		Model(&records).
		Where("?TableAlias.bridge_name = ?", bridgeName).
		OrderExpr("?TableAlias.remote_id ASC").
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return records, nil
}

func applyBridgeState(record *bridgeStateRecord, state core.BridgeState, now time.Time) {
	record.Version = strings.TrimSpace(state.Version)
	record.Owner = state.Principals.Owner
	record.Admin = state.Principals.Admin
	record.Transport = state.Principals.Transport
	record.Counterpart = state.Principals.Counterpart.String()
	record.CounterpartBridge = state.Principals.CounterpartBridge.String()
	record.Configured = state.Protocols != nil
	record.Sources = []string{}
	record.Destinations = []string{}
	if state.Protocols != nil {
		cfg := state.Protocols.Clone()
		record.Sources = cfg.Sources
		record.Destinations = cfg.Destinations
	}
	record.ProposedRemoval = nil
	if proposal := strings.TrimSpace(state.ProposedRemoval); proposal != "" {
		record.ProposedRemoval = &proposal
	}
	record.UpdatedAt = now
}

func bridgeStateToDomain(record *bridgeStateRecord, assets []*bridgeAssetRecord) (core.BridgeState, error) {
	state := core.NewBridgeState()
	if record != nil {
		counterpart, err := parseOptionalAddress(record.Counterpart)
		if err != nil {
			return core.BridgeState{}, err
		}
		counterpartBridge, err := parseOptionalAddress(record.CounterpartBridge)
		if err != nil {
			return core.BridgeState{}, err
		}
		state.Version = record.Version
		state.Principals = core.Principals{
			Owner:             record.Owner,
			Admin:             record.Admin,
			Transport:         record.Transport,
			Counterpart:       counterpart,
			CounterpartBridge: counterpartBridge,
		}
		if record.Configured {
			state.Protocols = &core.ProtocolConfig{
				Sources:      append([]string{}, record.Sources...),
				Destinations: append([]string{}, record.Destinations...),
			}
		}
		if record.ProposedRemoval != nil {
			state.ProposedRemoval = *record.ProposedRemoval
		}
	}
	for _, asset := range assets {
		if asset == nil {
			continue
		}
		if err := state.RegisterAsset(asset.RemoteID, asset.LocalHandle); err != nil {
			return core.BridgeState{}, fmt.Errorf("sqlstore: load asset %q: %w", asset.RemoteID, err)
		}
	}
	return state, nil
}

func parseOptionalAddress(value string) (core.NetworkAddress, error) {
	if strings.TrimSpace(value) == "" {
		return core.NetworkAddress{}, nil
	}
	addr, err := core.ParseNetworkAddress(value)
	if err != nil {
		return core.NetworkAddress{}, fmt.Errorf("sqlstore: stored address %q: %w", value, err)
	}
	return addr, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
