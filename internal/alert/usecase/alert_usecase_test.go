package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	alertdomain "plateping-backend/internal/alert/domain"
	"plateping-backend/internal/alert/repository"
)

type fakeAlertRepo struct {
	alerts map[string]*alertdomain.Alert
	nextID int
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*alertdomain.Alert)}
}

func (r *fakeAlertRepo) CreateWithRecipients(alert *alertdomain.Alert, recipientIDs []string) error {
	r.nextID++
	alert.ID = fmt.Sprintf("alert-%d", r.nextID)
	for _, userID := range recipientIDs {
		alert.Recipients = append(alert.Recipients, alertdomain.AlertRecipient{
			ID:      fmt.Sprintf("%s-%s", alert.ID, userID),
			AlertID: alert.ID,
			UserID:  userID,
			Status:  alertdomain.RecipientStatusSent,
		})
	}
	r.alerts[alert.ID] = alert
	return nil
}

func (r *fakeAlertRepo) FindByID(id string) (*alertdomain.Alert, error) {
	alert, ok := r.alerts[id]
	if !ok {
		return nil, alertdomain.ErrNotFound
	}
	return alert, nil
}

func (r *fakeAlertRepo) TransitionRecipient(alertID, userID string, newStatus alertdomain.RecipientStatus, response string, now time.Time) (*repository.TransitionResult, error) {
	alert, ok := r.alerts[alertID]
	if !ok {
		return nil, alertdomain.ErrNotFound
	}
	for i := range alert.Recipients {
		rec := &alert.Recipients[i]
		if rec.UserID != userID {
			continue
		}
		eff, err := alertdomain.ApplyRecipientTransition(alert, rec, newStatus, response, now)
		if err != nil {
			return nil, err
		}
		return &repository.TransitionResult{Alert: alert, Recipient: rec, Effects: eff}, nil
	}
	return nil, alertdomain.ErrNotFound
}

func (r *fakeAlertRepo) MarkDelivered(alertID, userID string, now time.Time) error {
	alert, ok := r.alerts[alertID]
	if !ok {
		return alertdomain.ErrNotFound
	}
	for i := range alert.Recipients {
		rec := &alert.Recipients[i]
		if rec.UserID == userID && rec.Status == alertdomain.RecipientStatusSent {
			rec.Status = alertdomain.RecipientStatusDelivered
			rec.DeliveredAt = &now
			if alert.Status == alertdomain.AlertStatusSent {
				alert.Status = alertdomain.AlertStatusDelivered
			}
			return nil
		}
	}
	return alertdomain.ErrNotFound
}

func (r *fakeAlertRepo) UpdateStatus(alertID string, allowedFrom []alertdomain.AlertStatus, to alertdomain.AlertStatus) error {
	alert, ok := r.alerts[alertID]
	if !ok {
		return alertdomain.ErrNotFound
	}
	for _, from := range allowedFrom {
		if alert.Status == from {
			alert.Status = to
			return nil
		}
	}
	return alertdomain.ErrInvalidTransition
}

func (r *fakeAlertRepo) ListForEscalation(now time.Time) ([]alertdomain.Alert, error) { return nil, nil }

func (r *fakeAlertRepo) BumpEscalation(alertID string, step int, now time.Time) error { return nil }

func (r *fakeAlertRepo) ExpireOverdue(now time.Time) (int64, error) { return 0, nil }

func (r *fakeAlertRepo) PendingRecipientIDs(alertID string) ([]string, error) {
	alert, ok := r.alerts[alertID]
	if !ok {
		return nil, alertdomain.ErrNotFound
	}
	var ids []string
	for _, rec := range alert.Recipients {
		if rec.Status == alertdomain.RecipientStatusSent || rec.Status == alertdomain.RecipientStatusDelivered {
			ids = append(ids, rec.UserID)
		}
	}
	return ids, nil
}

func (r *fakeAlertRepo) ListBySender(senderID string) ([]alertdomain.Alert, error) {
	var out []alertdomain.Alert
	for _, a := range r.alerts {
		if a.SenderID == senderID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) ListForRecipient(userID string) ([]alertdomain.Alert, error) {
	var out []alertdomain.Alert
	for _, a := range r.alerts {
		for _, rec := range a.Recipients {
			if rec.UserID == userID {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

type fakePlateRepo struct {
	byFingerprint map[string][]string
	registrations []alertdomain.PlateRegistration
}

func newFakePlateRepo() *fakePlateRepo {
	return &fakePlateRepo{byFingerprint: make(map[string][]string)}
}

func (r *fakePlateRepo) Register(reg *alertdomain.PlateRegistration) (bool, error) {
	r.byFingerprint[reg.PlateFingerprint] = append(r.byFingerprint[reg.PlateFingerprint], reg.UserID)
	r.registrations = append(r.registrations, *reg)
	return true, nil
}

func (r *fakePlateRepo) Unregister(userID, fingerprint string) error {
	users := r.byFingerprint[fingerprint]
	for i, u := range users {
		if u == userID {
			r.byFingerprint[fingerprint] = append(users[:i], users[i+1:]...)
			return nil
		}
	}
	return alertdomain.ErrNotFound
}

func (r *fakePlateRepo) ListByUser(userID string) ([]alertdomain.PlateRegistration, error) {
	var out []alertdomain.PlateRegistration
	for _, reg := range r.registrations {
		if reg.UserID == userID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (r *fakePlateRepo) ResolveRecipients(fingerprint string) ([]string, error) {
	return r.byFingerprint[fingerprint], nil
}

type fakeStatsRepo struct{}

func (r *fakeStatsRepo) Get(userID string) (*alertdomain.UserStats, error) {
	return &alertdomain.UserStats{UserID: userID}, nil
}

func setupUsecase(t *testing.T) (AlertUsecase, *fakeAlertRepo, *fakePlateRepo) {
	t.Helper()
	alertRepo := newFakeAlertRepo()
	plateRepo := newFakePlateRepo()
	return NewAlertUsecase(alertRepo, plateRepo, &fakeStatsRepo{}), alertRepo, plateRepo
}

func registerPlates(plateRepo *fakePlateRepo, fingerprint string, userIDs ...string) {
	for _, id := range userIDs {
		plateRepo.byFingerprint[fingerprint] = append(plateRepo.byFingerprint[fingerprint], id)
	}
}

func TestCreateAlert_FansOutToAllRegistrants(t *testing.T) {
	uc, _, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a", "user-b", "user-c")

	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyHigh, "blocked at garage exit", 0)
	require.NoError(t, err)

	require.Equal(t, alertdomain.AlertStatusSent, alert.Status)
	require.Equal(t, alertdomain.UrgencyHigh, alert.Urgency)
	require.Equal(t, 0, alert.EscalationStep)
	require.Len(t, alert.Recipients, 3)
	for _, rec := range alert.Recipients {
		require.Equal(t, alertdomain.RecipientStatusSent, rec.Status)
	}

	// Default deadline comes from the urgency tier.
	ttl := alert.ExpiresAt.Sub(alert.SentAt)
	require.Equal(t, alertdomain.UrgencyHigh.DefaultTTL(), ttl)
}

func TestCreateAlert_ZeroRecipientsIsValid(t *testing.T) {
	uc, _, _ := setupUsecase(t)

	alert, err := uc.CreateAlert("sender-1", "fp-unknown", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)
	require.Empty(t, alert.Recipients)
	require.Equal(t, alertdomain.AlertStatusSent, alert.Status)
}

func TestCreateAlert_DefaultsAndValidation(t *testing.T) {
	uc, _, _ := setupUsecase(t)

	alert, err := uc.CreateAlert("sender-1", "fp-1", "", "", 0)
	require.NoError(t, err)
	require.Equal(t, alertdomain.UrgencyNormal, alert.Urgency)

	alert, err = uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyLow, "", 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, alert.ExpiresAt.Sub(alert.SentAt))

	var verr *alertdomain.ValidationError

	_, err = uc.CreateAlert("sender-1", "", alertdomain.UrgencyNormal, "", 0)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "plate_fingerprint", verr.Field)

	_, err = uc.CreateAlert("sender-1", "fp-1", "critical", "", 0)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "urgency", verr.Field)

	_, err = uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", -time.Minute)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "ttl", verr.Field)
}

func TestRespond(t *testing.T) {
	uc, alertRepo, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.NoError(t, uc.Respond(alert.ID, "user-a", alertdomain.ResponseOnMyWay))

	stored := alertRepo.alerts[alert.ID]
	require.Equal(t, alertdomain.RecipientStatusAcknowledged, stored.Recipients[0].Status)
	require.Equal(t, alertdomain.ResponseOnMyWay, stored.Recipients[0].Response)
	require.Equal(t, alertdomain.AlertStatusAcknowledged, stored.Status)

	var verr *alertdomain.ValidationError
	err = uc.Respond(alert.ID, "user-a", "brb")
	require.ErrorAs(t, err, &verr)

	// Non-recipient has no record to transition.
	require.ErrorIs(t, uc.Respond(alert.ID, "stranger", alertdomain.ResponseOnMyWay), alertdomain.ErrNotFound)
}

func TestResolve_RecipientPath(t *testing.T) {
	uc, alertRepo, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.NoError(t, uc.Resolve(alert.ID, "user-a"))

	stored := alertRepo.alerts[alert.ID]
	require.Equal(t, alertdomain.RecipientStatusResolved, stored.Recipients[0].Status)
	require.Equal(t, alertdomain.AlertStatusResolved, stored.Status)
}

func TestResolve_SenderWithoutRecipientRecord(t *testing.T) {
	uc, alertRepo, _ := setupUsecase(t)
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.NoError(t, uc.Resolve(alert.ID, "sender-1"))
	require.Equal(t, alertdomain.AlertStatusResolved, alertRepo.alerts[alert.ID].Status)

	// Already terminal, nothing left to resolve.
	require.ErrorIs(t, uc.Resolve(alert.ID, "sender-1"), alertdomain.ErrInvalidTransition)
}

func TestResolve_StrangerForbidden(t *testing.T) {
	uc, _, _ := setupUsecase(t)
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.ErrorIs(t, uc.Resolve(alert.ID, "stranger"), alertdomain.ErrForbidden)
}

func TestCancel(t *testing.T) {
	uc, alertRepo, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.ErrorIs(t, uc.Cancel(alert.ID, "user-a"), alertdomain.ErrForbidden)

	require.NoError(t, uc.Cancel(alert.ID, "sender-1"))
	require.Equal(t, alertdomain.AlertStatusCancelled, alertRepo.alerts[alert.ID].Status)

	require.ErrorIs(t, uc.Cancel(alert.ID, "sender-1"), alertdomain.ErrInvalidTransition)
}

func TestIgnore(t *testing.T) {
	uc, alertRepo, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.NoError(t, uc.Ignore(alert.ID, "user-a"))

	stored := alertRepo.alerts[alert.ID]
	require.Equal(t, alertdomain.RecipientStatusIgnored, stored.Recipients[0].Status)
	// An ignore never advances the aggregate view.
	require.Equal(t, alertdomain.AlertStatusSent, stored.Status)
}

func TestGetAlert_Authorization(t *testing.T) {
	uc, _, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	_, err = uc.GetAlert("sender-1", alert.ID)
	require.NoError(t, err)

	_, err = uc.GetAlert("user-a", alert.ID)
	require.NoError(t, err)

	_, err = uc.GetAlert("stranger", alert.ID)
	require.ErrorIs(t, err, alertdomain.ErrForbidden)

	_, err = uc.GetAlert("sender-1", "missing")
	require.ErrorIs(t, err, alertdomain.ErrNotFound)
}

func TestGetAlert_LazyExpiry(t *testing.T) {
	uc, alertRepo, _ := setupUsecase(t)
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	// Push the deadline into the past; the next read expires the alert.
	alertRepo.alerts[alert.ID].ExpiresAt = time.Now().Add(-time.Minute)

	got, err := uc.GetAlert("sender-1", alert.ID)
	require.NoError(t, err)
	require.Equal(t, alertdomain.AlertStatusExpired, got.Status)
	require.Equal(t, alertdomain.AlertStatusExpired, alertRepo.alerts[alert.ID].Status)
}

func TestMarkDelivered(t *testing.T) {
	uc, alertRepo, plateRepo := setupUsecase(t)
	registerPlates(plateRepo, "fp-1", "user-a", "user-b")
	alert, err := uc.CreateAlert("sender-1", "fp-1", alertdomain.UrgencyNormal, "", 0)
	require.NoError(t, err)

	require.NoError(t, uc.MarkDelivered(alert.ID, "user-a"))

	stored := alertRepo.alerts[alert.ID]
	require.Equal(t, alertdomain.RecipientStatusDelivered, stored.Recipients[0].Status)
	require.Equal(t, alertdomain.RecipientStatusSent, stored.Recipients[1].Status)
	require.Equal(t, alertdomain.AlertStatusDelivered, stored.Status)
}

func TestPlateLifecycle(t *testing.T) {
	uc, _, _ := setupUsecase(t)

	reg, err := uc.RegisterPlate("user-a", "fp-1", "my sedan")
	require.NoError(t, err)
	require.Equal(t, "my sedan", reg.Alias)

	plates, err := uc.ListPlates("user-a")
	require.NoError(t, err)
	require.Len(t, plates, 1)

	var verr *alertdomain.ValidationError
	_, err = uc.RegisterPlate("user-a", "", "")
	require.ErrorAs(t, err, &verr)

	require.NoError(t, uc.UnregisterPlate("user-a", "fp-1"))
	require.ErrorIs(t, uc.UnregisterPlate("user-a", "fp-1"), alertdomain.ErrNotFound)
}
