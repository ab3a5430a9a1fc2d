package payoutrelease

import (
	"strings"
	"time"
)

const (
	WorkflowName    = "payout_release"
	ActivityPromote = "payout_release_promote"
)

// Input is the workflow argument. ReleaseAt is the order's withdrawAvailableAt.
type Input struct {
	OrderID   string    `json:"order_id"`
	ReleaseAt time.Time `json:"release_at"`
}

type PromoteResult struct {
	OrderID  string `json:"order_id"`
	Promoted bool   `json:"promoted"`
	Reason   string `json:"reason,omitempty"`
}

func WorkflowID(orderID string) string {
	return WorkflowName + ":" + strings.TrimSpace(orderID)
}
