package shippo

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/marketplace-backend/internal/domain"
)

const (
	EventTrackUpdated = "track_updated"
	TokenHeader       = "X-Shippo-Token"
	TokenQueryParam   = "token"
)

// WebhookVerifier checks the shared token configured on the tracking webhook URL.
type WebhookVerifier struct {
	token []byte
}

func NewWebhookVerifier(token string) (*WebhookVerifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing SHIPPO_WEBHOOK_TOKEN")
	}
	return &WebhookVerifier{token: []byte(token)}, nil
}

func (v *WebhookVerifier) Verify(presented string) bool {
	if v == nil || len(v.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), v.token) == 1
}

type trackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Carrier        string     `json:"carrier"`
		TrackingNumber string     `json:"tracking_number"`
		ETA            *time.Time `json:"eta"`
		TrackingStatus *struct {
			Status        string     `json:"status"`
			StatusDetails string     `json:"status_details"`
			StatusDate    *time.Time `json:"status_date"`
		} `json:"tracking_status"`
	} `json:"data"`
}

// ParseTrackingUpdate decodes a tracking webhook body. ok is false for other event kinds.
// receivedAt stands in for a missing status date.
func ParseTrackingUpdate(payload []byte, receivedAt time.Time) (*domain.TrackingUpdate, bool, error) {
	const op = "shippo.ParseTrackingUpdate"
	var evt trackEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, false, domain.Failf(domain.ErrValidation, op, "decode: %v", err)
	}
	if !strings.EqualFold(strings.TrimSpace(evt.Event), EventTrackUpdated) {
		return nil, false, nil
	}
	tn := strings.TrimSpace(evt.Data.TrackingNumber)
	if tn == "" {
		return nil, false, domain.Fail(domain.ErrValidation, op, "missing tracking_number")
	}
	if evt.Data.TrackingStatus == nil {
		return nil, false, domain.Fail(domain.ErrValidation, op, "missing tracking_status")
	}
	out := &domain.TrackingUpdate{
		Carrier:        strings.TrimSpace(evt.Data.Carrier),
		TrackingNumber: tn,
		Status:         strings.TrimSpace(evt.Data.TrackingStatus.Status),
		StatusDetails:  strings.TrimSpace(evt.Data.TrackingStatus.StatusDetails),
		StatusDate:     receivedAt.UTC(),
	}
	if d := evt.Data.TrackingStatus.StatusDate; d != nil && !d.IsZero() {
		out.StatusDate = d.UTC()
	}
	if evt.Data.ETA != nil && !evt.Data.ETA.IsZero() {
		eta := evt.Data.ETA.UTC()
		out.ETA = &eta
	}
	return out, true, nil
}
