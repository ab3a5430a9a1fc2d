package domain

import "strings"

type ShippingStatus string

const (
	ShippingPending        ShippingStatus = "pending"
	ShippingLabelCreated   ShippingStatus = "label_created"
	ShippingLabelFailed    ShippingStatus = "label_failed"
	ShippingShipped        ShippingStatus = "shipped"
	ShippingDelivered      ShippingStatus = "delivered"
	ShippingDeliveryFailed ShippingStatus = "delivery_failed"
	ShippingTrackingLost   ShippingStatus = "tracking_lost"
)

var shippingTransitions = map[ShippingStatus][]ShippingStatus{
	ShippingPending:        {ShippingLabelCreated, ShippingLabelFailed},
	ShippingLabelFailed:    {ShippingLabelCreated, ShippingLabelFailed},
	ShippingLabelCreated:   {ShippingShipped, ShippingDelivered, ShippingDeliveryFailed, ShippingTrackingLost},
	ShippingShipped:        {ShippingDelivered, ShippingDeliveryFailed, ShippingTrackingLost},
	ShippingDeliveryFailed: {ShippingShipped, ShippingDelivered, ShippingTrackingLost},
	ShippingTrackingLost:   {ShippingShipped, ShippingDelivered, ShippingDeliveryFailed},
	ShippingDelivered:      nil,
}

func (s ShippingStatus) Valid() bool {
	_, ok := shippingTransitions[s]
	return ok
}

// CanTransition reports whether s may move to next. Staying put is always allowed.
func (s ShippingStatus) CanTransition(next ShippingStatus) bool {
	if !next.Valid() || !s.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range shippingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next when allowed and ErrInvalidTransition otherwise.
func (s ShippingStatus) Transition(next ShippingStatus) (ShippingStatus, error) {
	if !s.CanTransition(next) {
		return s, Failf(ErrInvalidTransition, "ShippingStatus.Transition", "shipping %s -> %s", s, next)
	}
	return next, nil
}

// AwaitingLabel is true while a label may still be bought for the order.
func (s ShippingStatus) AwaitingLabel() bool {
	return s == ShippingPending || s == ShippingLabelFailed
}

// ShippingFromStatuses lists every status that may move to target.
func ShippingFromStatuses(target ShippingStatus) []ShippingStatus {
	var out []ShippingStatus
	for _, from := range orderedShipping {
		if from.CanTransition(target) {
			out = append(out, from)
		}
	}
	return out
}

var orderedShipping = []ShippingStatus{
	ShippingPending,
	ShippingLabelCreated,
	ShippingLabelFailed,
	ShippingShipped,
	ShippingDelivered,
	ShippingDeliveryFailed,
	ShippingTrackingLost,
}

// TargetForCarrierStatus maps a carrier tracking status onto the shipping FSM.
// The second result is false for statuses the pipeline does not act on.
func TargetForCarrierStatus(carrierStatus string) (ShippingStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(carrierStatus)) {
	case "pre_transit":
		return ShippingLabelCreated, true
	case "transit", "in_transit":
		return ShippingShipped, true
	case "delivered":
		return ShippingDelivered, true
	case "failure", "error":
		return ShippingDeliveryFailed, true
	case "unknown":
		return ShippingTrackingLost, true
	default:
		return "", false
	}
}
