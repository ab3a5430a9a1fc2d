package domain

import "time"

const (
	EventSourceStripe = "stripe"
	EventSourceShippo = "shippo"
)

type EventStatus string

const (
	EventProcessing EventStatus = "processing"
	EventDone       EventStatus = "done"
)

// ProcessedEvent records an inbound webhook before any side effect happens.
type ProcessedEvent struct {
	Source    string      `gorm:"primaryKey;size:32" json:"source"`
	EventID   string      `gorm:"primaryKey;size:255" json:"event_id"`
	Status    EventStatus `gorm:"size:32;not null" json:"status"`
	Attempts  int         `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }

// PaymentCompleted is a verified checkout-completion event from the payment processor.
type PaymentCompleted struct {
	EventID           string
	PaymentSessionID  string
	CheckoutSessionID string
	BuyerID           string
	BuyerEmail        string
	AmountTotal       Cents
	Metadata          map[string]string
	ShipTo            *Address
}

// TrackingUpdate is a verified carrier status change.
type TrackingUpdate struct {
	Carrier        string
	TrackingNumber string
	Status         string
	StatusDetails  string
	StatusDate     time.Time
	ETA            *time.Time
}
