package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func bridgeStateHandlers() repository.ModelHandlers[*bridgeStateRecord] {
	return repository.ModelHandlers[*bridgeStateRecord]{
		NewRecord: func() *bridgeStateRecord {
			return &bridgeStateRecord{}
		},
		GetID: func(record *bridgeStateRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *bridgeStateRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *bridgeStateRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func bridgeAssetHandlers() repository.ModelHandlers[*bridgeAssetRecord] {
	return repository.ModelHandlers[*bridgeAssetRecord]{
		NewRecord: func() *bridgeAssetRecord {
			return &bridgeAssetRecord{}
		},
		GetID: func(record *bridgeAssetRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *bridgeAssetRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *bridgeAssetRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func deliveryClaimHandlers() repository.ModelHandlers[*deliveryClaimRecord] {
	return repository.ModelHandlers[*deliveryClaimRecord]{
		NewRecord: func() *deliveryClaimRecord {
			return &deliveryClaimRecord{}
		},
		GetID: func(record *deliveryClaimRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *deliveryClaimRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *deliveryClaimRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
