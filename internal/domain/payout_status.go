package domain

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutAvailable PayoutStatus = "available"
	PayoutWithdrawn PayoutStatus = "withdrawn"
)

var payoutNext = map[PayoutStatus]PayoutStatus{
	PayoutPending:   PayoutAvailable,
	PayoutAvailable: PayoutWithdrawn,
}

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutAvailable, PayoutWithdrawn:
		return true
	}
	return false
}

// CanTransition allows only the single forward step.
func (s PayoutStatus) CanTransition(next PayoutStatus) bool {
	n, ok := payoutNext[s]
	return ok && n == next
}

func (s PayoutStatus) Transition(next PayoutStatus) (PayoutStatus, error) {
	if !s.CanTransition(next) {
		return s, Failf(ErrInvalidTransition, "PayoutStatus.Transition", "payout %s -> %s", s, next)
	}
	return next, nil
}

// PayoutFromStatuses lists the statuses a guarded update to target may start from.
func PayoutFromStatuses(target PayoutStatus) []PayoutStatus {
	var out []PayoutStatus
	for from, to := range payoutNext {
		if to == target {
			out = append(out, from)
		}
	}
	return out
}
