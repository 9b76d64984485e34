package domain

import "time"

// TransitionEffects describes the side effects a successful recipient
// transition must apply in the same unit of work. Effects are derived from
// the transition itself, never from re-reading current status, so replaying
// the same call cannot double-count.
type TransitionEffects struct {
	NoOp bool // repeat of the current status, nothing to persist

	RecipientReputation int
	SenderReputation    int

	CountAcknowledged bool
	CountResolved     bool

	// Seconds between the alert being sent and the acknowledgement.
	// Only meaningful when CountAcknowledged is set.
	ResponseSeconds float64

	// AlertStatusChanged is set when the aggregate status ratcheted forward.
	AlertStatusChanged bool
}

// ApplyRecipientTransition enforces the forward-only recipient lattice and
// mutates rec and alert in place. The caller persists both inside one
// transaction together with the returned effects.
//
// Repeating the recipient's current status is an idempotent no-op. Backward
// moves, sideways moves (acknowledged <-> ignored) and any update after
// resolved fail with ErrInvalidTransition and leave both records untouched.
func ApplyRecipientTransition(alert *Alert, rec *AlertRecipient, newStatus RecipientStatus, response string, now time.Time) (TransitionEffects, error) {
	var eff TransitionEffects

	if !ValidRecipientStatus(newStatus) {
		return eff, &ValidationError{Field: "status", Reason: "unknown recipient status"}
	}
	if newStatus == rec.Status {
		eff.NoOp = true
		return eff, nil
	}
	if rec.Status.Terminal() || newStatus.Rank() <= rec.Status.Rank() {
		return eff, ErrInvalidTransition
	}

	rec.Status = newStatus
	rec.UpdatedAt = now

	switch newStatus {
	case RecipientStatusDelivered:
		if rec.DeliveredAt == nil {
			t := now
			rec.DeliveredAt = &t
		}
	case RecipientStatusAcknowledged:
		t := now
		rec.AcknowledgedAt = &t
		if response != "" {
			rec.Response = response
		}
		eff.RecipientReputation = ReputationAcknowledge
		eff.CountAcknowledged = true
		eff.ResponseSeconds = now.Sub(alert.SentAt).Seconds()
	case RecipientStatusResolved:
		t := now
		rec.ResolvedAt = &t
		if response != "" {
			rec.Response = response
		}
		eff.RecipientReputation = ReputationResolveOwner
		eff.SenderReputation = ReputationResolveReporter
		eff.CountResolved = true
	}

	eff.AlertStatusChanged = ratchetAlertStatus(alert, newStatus)
	return eff, nil
}

// ratchetAlertStatus advances the aggregate status when a recipient moved
// further than the alert has recorded so far. The aggregate never regresses
// and never leaves a terminal state.
func ratchetAlertStatus(alert *Alert, recStatus RecipientStatus) bool {
	if alert.Status.Terminal() {
		return false
	}

	var candidate AlertStatus
	switch recStatus {
	case RecipientStatusDelivered:
		candidate = AlertStatusDelivered
	case RecipientStatusAcknowledged:
		candidate = AlertStatusAcknowledged
	case RecipientStatusResolved:
		candidate = AlertStatusResolved
	default:
		return false // ignored does not move the aggregate
	}

	if candidate.rank() <= alert.Status.rank() {
		return false
	}
	alert.Status = candidate
	return true
}
