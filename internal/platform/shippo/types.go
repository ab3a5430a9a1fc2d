package shippo

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yungbote/marketplace-backend/internal/domain"
)

// Parcel dimensions are inches and pounds.
type Parcel struct {
	Length decimal.Decimal
	Width  decimal.Decimal
	Height decimal.Decimal
	Weight decimal.Decimal
}

type Rate struct {
	ID            string
	Provider      string
	ServiceName   string
	ServiceToken  string
	Amount        domain.Cents
	Currency      string
	EstimatedDays *int
}

type Shipment struct {
	ID    string
	Rates []Rate
}

type Label struct {
	TransactionID  string
	RateID         string
	TrackingNumber string
	LabelURL       string
	ETA            *time.Time
}

// --- wire types ---

type wireAddress struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

func toWireAddress(a domain.Address) wireAddress {
	return wireAddress{
		Name:    strings.TrimSpace(a.Name),
		Street1: strings.TrimSpace(a.Street1),
		Street2: strings.TrimSpace(a.Street2),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Zip:     strings.TrimSpace(a.Zip),
		Country: a.CountryOrDefault(),
		Phone:   strings.TrimSpace(a.Phone),
		Email:   strings.TrimSpace(a.Email),
	}
}

type wireParcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

func toWireParcel(p Parcel) wireParcel {
	return wireParcel{
		Length:       p.Length.String(),
		Width:        p.Width.String(),
		Height:       p.Height.String(),
		DistanceUnit: "in",
		Weight:       p.Weight.StringFixed(2),
		MassUnit:     "lb",
	}
}

type shipmentRequest struct {
	AddressFrom wireAddress  `json:"address_from"`
	AddressTo   wireAddress  `json:"address_to"`
	Parcels     []wireParcel `json:"parcels"`
	Async       bool         `json:"async"`
}

type wireRate struct {
	ObjectID      string `json:"object_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Provider      string `json:"provider"`
	EstimatedDays *int   `json:"estimated_days"`
	ServiceLevel  struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
}

type wireMessage struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Text   string `json:"text"`
}

type shipmentResponse struct {
	ObjectID string        `json:"object_id"`
	Status   string        `json:"status"`
	Rates    []wireRate    `json:"rates"`
	Messages []wireMessage `json:"messages"`
}

type transactionRequest struct {
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Async         bool   `json:"async"`
}

type transactionResponse struct {
	ObjectID       string        `json:"object_id"`
	Status         string        `json:"status"`
	Rate           string        `json:"rate"`
	TrackingNumber string        `json:"tracking_number"`
	LabelURL       string        `json:"label_url"`
	ETA            *time.Time    `json:"eta"`
	Messages       []wireMessage `json:"messages"`
}

func joinMessages(msgs []wireMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t := strings.TrimSpace(m.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}
