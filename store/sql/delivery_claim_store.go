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

const (
	claimStatusProcessing = "processing"
	claimStatusRetryReady = "retry_ready"
	claimStatusComplete   = "complete"

	defaultClaimLease = 10 * time.Minute
)

// DeliveryClaimStore records which transport deliveries were already applied.
// A completed claim is permanent; a processing claim may be taken over once
// its lease expires, and a failed claim once its retry time passes. Until
// then Claim fails with core.DeliveryDeferredError.
type DeliveryClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryClaimRecord]
	Now  func() time.Time
}

func NewDeliveryClaimStore(db *bun.DB) (*DeliveryClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryClaimRecord](db, deliveryClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery claim repository wiring: %w", err)
		}
	}
	return &DeliveryClaimStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DeliveryClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: claim key is required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.now()
	leaseExpiresAt := now.Add(lease)

	var (
		claimID  string
		accepted bool
		deferred error
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findDeliveryClaimTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &deliveryClaimRecord{
				ID:             uuid.NewString(),
				ClaimKey:       key,
				ClaimID:        uuid.NewString(),
				Status:         claimStatusProcessing,
				Attempts:       1,
				KeyTTLSeconds:  int64(lease / time.Second),
				LeaseExpiresAt: &leaseExpiresAt,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, createErr := s.repo.CreateTx(ctx, tx, record); createErr != nil {
				if isUniqueViolation(createErr) {
					deferred = core.DeliveryDeferredError(key, "claim lease is held")
					return nil
				}
				return createErr
			}
			claimID, accepted = record.ClaimID, true
			return nil
		}

		switch record.Status {
		case claimStatusComplete:
			return nil
		case claimStatusProcessing:
			if record.LeaseExpiresAt != nil && now.Before(*record.LeaseExpiresAt) {
				deferred = core.DeliveryDeferredError(key, "claim lease is held")
				return nil
			}
		case claimStatusRetryReady:
			if record.RetryAt != nil && now.Before(*record.RetryAt) {
				deferred = core.DeliveryDeferredError(key, "retry is backing off")
				return nil
			}
		}

		record.ClaimID = uuid.NewString()
		record.Status = claimStatusProcessing
		record.Attempts++
		record.KeyTTLSeconds = int64(lease / time.Second)
		record.LeaseExpiresAt = &leaseExpiresAt
		record.RetryAt = nil
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		claimID, accepted = record.ClaimID, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if deferred != nil {
		return "", false, deferred
	}
	return claimID, accepted, nil
}

// Complete marks the claim done. Stale or unknown claim ids are ignored.
func (s *DeliveryClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryClaimRecord)(nil)).
		Set("status = ?", claimStatusComplete).
		Set("lease_expires_at = NULL").
		Set("retry_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	return err
}

func (s *DeliveryClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := s.now()
	if retryAt.IsZero() {
		retryAt = now
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryClaimRecord)(nil)).
		Set("status = ?", claimStatusRetryReady).
		Set("lease_expires_at = NULL").
		Set("retry_at = ?", retryAt.UTC()).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	return err
}

// Status reports the stored status and attempt count for a claim key.
func (s *DeliveryClaimStore) Status(ctx context.Context, key string) (string, int, error) {
	if s == nil || s.db == nil {
		return "", 0, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	record, err := findDeliveryClaimTx(ctx, s.db, strings.TrimSpace(key))
	if err != nil {
		return "", 0, err
	}
	if record == nil {
		return "", 0, fmt.Errorf("sqlstore: delivery claim %q not found", key)
	}
	return record.Status, record.Attempts, nil
}

func (s *DeliveryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func findDeliveryClaimTx(ctx context.Context, db bun.IDB, key string) (*deliveryClaimRecord, error) {
	record := &deliveryClaimRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.claim_key = ?", key).
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
