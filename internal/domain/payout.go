package domain

import (
	"time"

	"gorm.io/datatypes"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferSucceeded TransferStatus = "succeeded"
	TransferFailed    TransferStatus = "failed"
)

// PayoutTransfer is the persisted intent of a vendor withdrawal. Its ID doubles as the
// processor idempotency key. A pending intent with LeasedUntil in the future is being
// sent to the processor by some request and must not be resumed by another.
type PayoutTransfer struct {
	ID                  string                      `gorm:"primaryKey;size:64" json:"id"`
	VendorID            string                      `gorm:"size:64;not null;index" json:"vendor_id"`
	PaymentAccountID    string                      `gorm:"size:128;not null" json:"payment_account_id"`
	Amount              Cents                       `gorm:"column:amount_cents;not null;default:0" json:"amount_cents"`
	OrderIDs            datatypes.JSONSlice[string] `gorm:"type:json" json:"order_ids"`
	Status              TransferStatus              `gorm:"size:32;not null;index" json:"status"`
	ProcessorTransferID string                      `gorm:"size:128" json:"processor_transfer_id,omitempty"`
	LastError           string                      `gorm:"type:text" json:"last_error,omitempty"`
	LeasedUntil         *time.Time                  `gorm:"index" json:"leased_until,omitempty"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutTransfer) TableName() string { return "payout_transfer" }

// PayoutResult is what a successful withdrawal reports back.
type PayoutResult struct {
	TransferID string   `json:"transfer_id"`
	Amount     Cents    `json:"amount_cents"`
	OrderIDs   []string `json:"order_ids"`
}
