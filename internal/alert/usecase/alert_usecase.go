package usecase

import (
	"errors"
	"log"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"
	"plateping-backend/internal/alert/repository"
)

// AlertUsecase is the service boundary for reporting blockages and tracking
// the per-recipient response lifecycle.
type AlertUsecase interface {
	// CreateAlert resolves the fanout set for the fingerprint and creates
	// the alert plus one recipient record per resolved user atomically.
	// Zero recipients is valid; the alert persists and dispatch is skipped.
	CreateAlert(senderID, fingerprint string, urgency alertdomain.Urgency, message string, ttl time.Duration) (*alertdomain.Alert, error)
	GetAlert(callerID, alertID string) (*alertdomain.Alert, error)
	ListSent(userID string) ([]alertdomain.Alert, error)
	ListReceived(userID string) ([]alertdomain.Alert, error)

	// Respond maps a fixed-vocabulary response to an acknowledged transition.
	Respond(alertID, userID, responseKind string) error
	// Resolve marks the caller's recipient record resolved, or resolves the
	// whole alert when the caller is the sender without a recipient record.
	Resolve(alertID, callerID string) error
	Cancel(alertID, senderID string) error
	Ignore(alertID, userID string) error
	MarkDelivered(alertID, userID string) error

	RegisterPlate(userID, fingerprint, alias string) (*alertdomain.PlateRegistration, error)
	UnregisterPlate(userID, fingerprint string) error
	ListPlates(userID string) ([]alertdomain.PlateRegistration, error)
	GetStats(userID string) (*alertdomain.UserStats, error)
}

// alertUsecase implements AlertUsecase interface
type alertUsecase struct {
	alertRepo repository.AlertRepository
	plateRepo repository.PlateRegistrationRepository
	statsRepo repository.UserStatsRepository
}

// NewAlertUsecase creates a new instance of alertUsecase
func NewAlertUsecase(alertRepo repository.AlertRepository, plateRepo repository.PlateRegistrationRepository, statsRepo repository.UserStatsRepository) AlertUsecase {
	return &alertUsecase{
		alertRepo: alertRepo,
		plateRepo: plateRepo,
		statsRepo: statsRepo,
	}
}

func (u *alertUsecase) CreateAlert(senderID, fingerprint string, urgency alertdomain.Urgency, message string, ttl time.Duration) (*alertdomain.Alert, error) {
	if senderID == "" {
		return nil, &alertdomain.ValidationError{Field: "sender", Reason: "required"}
	}
	if fingerprint == "" {
		return nil, &alertdomain.ValidationError{Field: "plate_fingerprint", Reason: "required"}
	}
	if urgency == "" {
		urgency = alertdomain.UrgencyNormal
	}
	if !alertdomain.ValidUrgency(urgency) {
		return nil, &alertdomain.ValidationError{Field: "urgency", Reason: "unknown tier"}
	}
	if ttl < 0 {
		return nil, &alertdomain.ValidationError{Field: "ttl", Reason: "must be positive"}
	}
	if ttl == 0 {
		ttl = urgency.DefaultTTL()
	}

	recipients, err := u.plateRepo.ResolveRecipients(fingerprint)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	alert := &alertdomain.Alert{
		SenderID:         senderID,
		PlateFingerprint: fingerprint,
		Urgency:          urgency,
		Message:          message,
		Status:           alertdomain.AlertStatusSent,
		EscalationStep:   0,
		LastEscalatedAt:  now,
		SentAt:           now,
		ExpiresAt:        now.Add(ttl),
	}

	if err := u.alertRepo.CreateWithRecipients(alert, recipients); err != nil {
		return nil, err
	}

	log.Printf("[Alert] Created alert %s for fingerprint %s with %d recipients", alert.ID, fingerprint, len(recipients))
	return u.alertRepo.FindByID(alert.ID)
}

func (u *alertUsecase) GetAlert(callerID, alertID string) (*alertdomain.Alert, error) {
	alert, err := u.alertRepo.FindByID(alertID)
	if err != nil {
		return nil, err
	}

	// Authorization at the service boundary: only the sender and the
	// fanout members may read an alert.
	if !u.involved(alert, callerID) {
		return nil, alertdomain.ErrForbidden
	}

	// Lazy expiry check on read
	if !alert.Status.Terminal() && alert.Expired(time.Now()) {
		err := u.alertRepo.UpdateStatus(alertID,
			[]alertdomain.AlertStatus{alertdomain.AlertStatusSent, alertdomain.AlertStatusDelivered},
			alertdomain.AlertStatusExpired)
		if err == nil {
			alert.Status = alertdomain.AlertStatusExpired
		} else if !errors.Is(err, alertdomain.ErrInvalidTransition) {
			return nil, err
		}
	}

	return alert, nil
}

func (u *alertUsecase) ListSent(userID string) ([]alertdomain.Alert, error) {
	return u.alertRepo.ListBySender(userID)
}

func (u *alertUsecase) ListReceived(userID string) ([]alertdomain.Alert, error) {
	return u.alertRepo.ListForRecipient(userID)
}

func (u *alertUsecase) Respond(alertID, userID, responseKind string) error {
	if !alertdomain.ValidResponse(responseKind) {
		return &alertdomain.ValidationError{Field: "response", Reason: "unknown response kind"}
	}
	_, err := u.alertRepo.TransitionRecipient(alertID, userID, alertdomain.RecipientStatusAcknowledged, responseKind, time.Now())
	return err
}

func (u *alertUsecase) Resolve(alertID, callerID string) error {
	_, err := u.alertRepo.TransitionRecipient(alertID, callerID, alertdomain.RecipientStatusResolved, "", time.Now())
	if err == nil || !errors.Is(err, alertdomain.ErrNotFound) {
		return err
	}

	// No recipient record: the sender may resolve their own alert.
	alert, ferr := u.alertRepo.FindByID(alertID)
	if ferr != nil {
		return ferr
	}
	if alert.SenderID != callerID {
		return alertdomain.ErrForbidden
	}
	return u.alertRepo.UpdateStatus(alertID, liveStatuses(), alertdomain.AlertStatusResolved)
}

func (u *alertUsecase) Cancel(alertID, senderID string) error {
	alert, err := u.alertRepo.FindByID(alertID)
	if err != nil {
		return err
	}
	if alert.SenderID != senderID {
		return alertdomain.ErrForbidden
	}
	return u.alertRepo.UpdateStatus(alertID, liveStatuses(), alertdomain.AlertStatusCancelled)
}

func (u *alertUsecase) Ignore(alertID, userID string) error {
	_, err := u.alertRepo.TransitionRecipient(alertID, userID, alertdomain.RecipientStatusIgnored, "", time.Now())
	return err
}

func (u *alertUsecase) MarkDelivered(alertID, userID string) error {
	return u.alertRepo.MarkDelivered(alertID, userID, time.Now())
}

func (u *alertUsecase) RegisterPlate(userID, fingerprint, alias string) (*alertdomain.PlateRegistration, error) {
	if fingerprint == "" {
		return nil, &alertdomain.ValidationError{Field: "plate_fingerprint", Reason: "required"}
	}
	reg := &alertdomain.PlateRegistration{
		UserID:           userID,
		PlateFingerprint: fingerprint,
		Alias:            alias,
	}
	if _, err := u.plateRepo.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (u *alertUsecase) UnregisterPlate(userID, fingerprint string) error {
	return u.plateRepo.Unregister(userID, fingerprint)
}

func (u *alertUsecase) ListPlates(userID string) ([]alertdomain.PlateRegistration, error) {
	return u.plateRepo.ListByUser(userID)
}

func (u *alertUsecase) GetStats(userID string) (*alertdomain.UserStats, error) {
	return u.statsRepo.Get(userID)
}

func (u *alertUsecase) involved(alert *alertdomain.Alert, userID string) bool {
	if alert.SenderID == userID {
		return true
	}
	for _, rec := range alert.Recipients {
		if rec.UserID == userID {
			return true
		}
	}
	return false
}

func liveStatuses() []alertdomain.AlertStatus {
	return []alertdomain.AlertStatus{
		alertdomain.AlertStatusSent,
		alertdomain.AlertStatusDelivered,
		alertdomain.AlertStatusAcknowledged,
	}
}
