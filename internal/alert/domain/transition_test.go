package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAlert(t *testing.T) (*Alert, *AlertRecipient) {
	t.Helper()
	sent := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := &Alert{
		ID:        "alert-1",
		SenderID:  "sender-1",
		Urgency:   UrgencyNormal,
		Status:    AlertStatusSent,
		SentAt:    sent,
		ExpiresAt: sent.Add(12 * time.Hour),
	}
	rec := &AlertRecipient{
		ID:      "rec-1",
		AlertID: alert.ID,
		UserID:  "user-1",
		Status:  RecipientStatusSent,
	}
	return alert, rec
}

func TestApplyRecipientTransition_Forward(t *testing.T) {
	alert, rec := newTestAlert(t)
	now := alert.SentAt.Add(5 * time.Minute)

	eff, err := ApplyRecipientTransition(alert, rec, RecipientStatusDelivered, "", now)
	require.NoError(t, err)
	require.False(t, eff.NoOp)
	require.Equal(t, RecipientStatusDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)
	require.Equal(t, AlertStatusDelivered, alert.Status)
	require.True(t, eff.AlertStatusChanged)
	require.Zero(t, eff.RecipientReputation)

	eff, err = ApplyRecipientTransition(alert, rec, RecipientStatusAcknowledged, ResponseOnMyWay, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, RecipientStatusAcknowledged, rec.Status)
	require.Equal(t, ResponseOnMyWay, rec.Response)
	require.NotNil(t, rec.AcknowledgedAt)
	require.Equal(t, ReputationAcknowledge, eff.RecipientReputation)
	require.True(t, eff.CountAcknowledged)
	require.InDelta(t, 360, eff.ResponseSeconds, 0.1)
	require.Equal(t, AlertStatusAcknowledged, alert.Status)

	eff, err = ApplyRecipientTransition(alert, rec, RecipientStatusResolved, "", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, ReputationResolveOwner, eff.RecipientReputation)
	require.Equal(t, ReputationResolveReporter, eff.SenderReputation)
	require.True(t, eff.CountResolved)
	require.Equal(t, AlertStatusResolved, alert.Status)
}

func TestApplyRecipientTransition_SkippingDeliveredIsAllowed(t *testing.T) {
	alert, rec := newTestAlert(t)

	// A recipient can acknowledge from the app before the delivery receipt
	// ever lands.
	_, err := ApplyRecipientTransition(alert, rec, RecipientStatusAcknowledged, ResponseMovingNow, alert.SentAt.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, RecipientStatusAcknowledged, rec.Status)
	require.Nil(t, rec.DeliveredAt)
}

func TestApplyRecipientTransition_RepeatIsIdempotentNoOp(t *testing.T) {
	alert, rec := newTestAlert(t)
	now := alert.SentAt.Add(time.Minute)

	eff, err := ApplyRecipientTransition(alert, rec, RecipientStatusAcknowledged, ResponseOnMyWay, now)
	require.NoError(t, err)
	require.Equal(t, ReputationAcknowledge, eff.RecipientReputation)

	// Same target status again: no error, and no effects to re-apply.
	eff, err = ApplyRecipientTransition(alert, rec, RecipientStatusAcknowledged, ResponseOnMyWay, now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, eff.NoOp)
	require.Zero(t, eff.RecipientReputation)
	require.False(t, eff.CountAcknowledged)
}

func TestApplyRecipientTransition_BackwardRejected(t *testing.T) {
	alert, rec := newTestAlert(t)
	now := alert.SentAt.Add(time.Minute)

	_, err := ApplyRecipientTransition(alert, rec, RecipientStatusAcknowledged, "", now)
	require.NoError(t, err)

	_, err = ApplyRecipientTransition(alert, rec, RecipientStatusDelivered, "", now)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, RecipientStatusAcknowledged, rec.Status)

	// Sideways move between the alternatives is rejected too.
	_, err = ApplyRecipientTransition(alert, rec, RecipientStatusIgnored, "", now)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyRecipientTransition_TerminalIsFinal(t *testing.T) {
	alert, rec := newTestAlert(t)
	now := alert.SentAt.Add(time.Minute)

	_, err := ApplyRecipientTransition(alert, rec, RecipientStatusResolved, "", now)
	require.NoError(t, err)

	for _, target := range []RecipientStatus{
		RecipientStatusSent, RecipientStatusDelivered,
		RecipientStatusAcknowledged, RecipientStatusIgnored,
	} {
		before := *rec
		_, err := ApplyRecipientTransition(alert, rec, target, "", now)
		require.ErrorIs(t, err, ErrInvalidTransition, "transition to %s", target)
		require.Equal(t, before, *rec, "state must be unchanged after rejected transition")
	}
}

func TestApplyRecipientTransition_UnknownStatusRejected(t *testing.T) {
	alert, rec := newTestAlert(t)

	var validationErr *ValidationError
	_, err := ApplyRecipientTransition(alert, rec, RecipientStatus("bogus"), "", alert.SentAt)
	require.Error(t, err)
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, RecipientStatusSent, rec.Status)
}

func TestApplyRecipientTransition_IgnoredDoesNotMoveAggregate(t *testing.T) {
	alert, rec := newTestAlert(t)

	eff, err := ApplyRecipientTransition(alert, rec, RecipientStatusIgnored, "", alert.SentAt.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, eff.AlertStatusChanged)
	require.Equal(t, AlertStatusSent, alert.Status)
	require.Zero(t, eff.RecipientReputation)
}

func TestAggregateStatusRatchet(t *testing.T) {
	alert, _ := newTestAlert(t)
	now := alert.SentAt.Add(time.Minute)

	resolver := &AlertRecipient{ID: "rec-a", AlertID: alert.ID, UserID: "user-a", Status: RecipientStatusSent}
	latecomer := &AlertRecipient{ID: "rec-b", AlertID: alert.ID, UserID: "user-b", Status: RecipientStatusSent}

	_, err := ApplyRecipientTransition(alert, resolver, RecipientStatusResolved, "", now)
	require.NoError(t, err)
	require.Equal(t, AlertStatusResolved, alert.Status)

	// A second recipient acknowledging later must not pull the aggregate
	// back out of its terminal state.
	eff, err := ApplyRecipientTransition(alert, latecomer, RecipientStatusAcknowledged, ResponseCantMove, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, eff.AlertStatusChanged)
	require.Equal(t, AlertStatusResolved, alert.Status)
	// The latecomer's own record still advances and earns reputation.
	require.Equal(t, RecipientStatusAcknowledged, latecomer.Status)
	require.Equal(t, ReputationAcknowledge, eff.RecipientReputation)
}

func TestUrgencyDefaults(t *testing.T) {
	// Lower urgency gets a longer window.
	require.Greater(t, UrgencyLow.DefaultTTL(), UrgencyNormal.DefaultTTL())
	require.Greater(t, UrgencyNormal.DefaultTTL(), UrgencyHigh.DefaultTTL())
	require.Greater(t, UrgencyHigh.DefaultTTL(), UrgencyUrgent.DefaultTTL())

	// And more patience before re-sending.
	require.Greater(t, UrgencyLow.EscalationInterval(), UrgencyNormal.EscalationInterval())
	require.Greater(t, UrgencyNormal.EscalationInterval(), UrgencyHigh.EscalationInterval())
	require.Greater(t, UrgencyHigh.EscalationInterval(), UrgencyUrgent.EscalationInterval())
}

func TestValidResponseVocabulary(t *testing.T) {
	require.True(t, ValidResponse(ResponseOnMyWay))
	require.True(t, ValidResponse(ResponseMovingNow))
	require.True(t, ValidResponse(ResponseCantMove))
	require.False(t, ValidResponse("brb"))
	require.False(t, ValidResponse(""))
}
