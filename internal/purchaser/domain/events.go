package domain

import shared "github.com/felixgeelhaar/entitle/internal/shared/domain"

// PurchaserInfoUpdatedRoutingKey routes purchaser info change events.
const PurchaserInfoUpdatedRoutingKey = "entitle.purchaser.updated"

// PurchaserInfoUpdated is published whenever reconciliation produces a
// snapshot that differs by value from the last one delivered.
type PurchaserInfoUpdated struct {
	shared.BaseEvent

	AppUserID string         `json:"app_user_id"`
	Info      *PurchaserInfo `json:"purchaser_info"`
}

// NewPurchaserInfoUpdated creates a change event for the given user.
func NewPurchaserInfoUpdated(appUserID string, info *PurchaserInfo) *PurchaserInfoUpdated {
	return &PurchaserInfoUpdated{
		BaseEvent: shared.NewBaseEvent(appUserID, "purchaser", PurchaserInfoUpdatedRoutingKey),
		AppUserID: appUserID,
		Info:      info,
	}
}
