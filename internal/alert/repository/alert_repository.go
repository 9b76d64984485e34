package repository

import (
	"errors"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"
	authdomain "plateping-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// minEscalationInterval is the shortest per-urgency re-send interval; used to
// pre-filter the escalation query before the exact per-tier check in Go.
const minEscalationInterval = 5 * time.Minute

// TransitionResult carries the post-transition state back to the caller.
type TransitionResult struct {
	Alert     *alertdomain.Alert
	Recipient *alertdomain.AlertRecipient
	Effects   alertdomain.TransitionEffects
}

// AlertRepository owns the alert and per-recipient lifecycle. All multi-row
// updates happen inside one transaction scoped to a single alert, so
// unrelated alerts never contend.
type AlertRepository interface {
	// CreateWithRecipients persists the alert plus one recipient row per
	// resolved user atomically, and bumps sent/received counters in the
	// same transaction. All-or-nothing.
	CreateWithRecipients(alert *alertdomain.Alert, recipientIDs []string) error
	FindByID(id string) (*alertdomain.Alert, error)
	// TransitionRecipient serializes concurrent updates for the same
	// (alert, user) with a row lock, enforces the forward-only lattice and
	// applies reputation/stats side effects in the same unit of work.
	TransitionRecipient(alertID, userID string, newStatus alertdomain.RecipientStatus, response string, now time.Time) (*TransitionResult, error)
	// MarkDelivered is idempotent: it records delivered_at once and is
	// ignored on repeat calls or after the recipient moved further.
	MarkDelivered(alertID, userID string, now time.Time) error
	// UpdateStatus moves the aggregate status when it is currently one of
	// allowedFrom; returns ErrInvalidTransition otherwise.
	UpdateStatus(alertID string, allowedFrom []alertdomain.AlertStatus, to alertdomain.AlertStatus) error
	// ListForEscalation returns live alerts whose last (re-)send is older
	// than their urgency tier's escalation interval.
	ListForEscalation(now time.Time) ([]alertdomain.Alert, error)
	BumpEscalation(alertID string, step int, now time.Time) error
	// ExpireOverdue sweeps sent/delivered alerts past their deadline to
	// expired; recipient rows are left untouched.
	ExpireOverdue(now time.Time) (int64, error)
	// PendingRecipientIDs returns recipients that have not responded yet.
	PendingRecipientIDs(alertID string) ([]string, error)
	ListBySender(senderID string) ([]alertdomain.Alert, error)
	ListForRecipient(userID string) ([]alertdomain.Alert, error)
}

type alertRepository struct {
	db *gorm.DB
}

// lockForUpdate acquires a row lock on Postgres. SQLite, which backs the
// repository tests, serializes writers itself and rejects FOR UPDATE.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// NewAlertRepository creates a new instance of alertRepository
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{
		db: db,
	}
}

func (r *alertRepository) CreateWithRecipients(alert *alertdomain.Alert, recipientIDs []string) error {
	alert.ID = uuid.New().String()

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(alert).Error; err != nil {
			return err
		}

		if err := bumpStat(tx, alert.SenderID, "alerts_sent"); err != nil {
			return err
		}

		now := time.Now()
		for _, userID := range recipientIDs {
			rec := &alertdomain.AlertRecipient{
				ID:        uuid.New().String(),
				AlertID:   alert.ID,
				UserID:    userID,
				Status:    alertdomain.RecipientStatusSent,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
			if err := bumpStat(tx, userID, "alerts_received"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *alertRepository) FindByID(id string) (*alertdomain.Alert, error) {
	var alert alertdomain.Alert
	err := r.db.Preload("Recipients").Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, alertdomain.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) TransitionRecipient(alertID, userID string, newStatus alertdomain.RecipientStatus, response string, now time.Time) (*TransitionResult, error) {
	var result TransitionResult

	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Lock the recipient row first: concurrent transitions for the
		// same (alert, user) serialize here and the later one is
		// evaluated against the earlier one's outcome.
		var rec alertdomain.AlertRecipient
		err := lockForUpdate(tx).
			Where("alert_id = ? AND user_id = ?", alertID, userID).
			First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return alertdomain.ErrNotFound
			}
			return err
		}

		var alert alertdomain.Alert
		err = lockForUpdate(tx).
			Where("id = ?", alertID).
			First(&alert).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return alertdomain.ErrNotFound
			}
			return err
		}

		eff, err := alertdomain.ApplyRecipientTransition(&alert, &rec, newStatus, response, now)
		if err != nil {
			return err
		}
		result = TransitionResult{Alert: &alert, Recipient: &rec, Effects: eff}
		if eff.NoOp {
			return nil
		}

		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		if eff.AlertStatusChanged {
			if err := tx.Model(&alertdomain.Alert{}).Where("id = ?", alertID).
				Update("status", alert.Status).Error; err != nil {
				return err
			}
		}

		if eff.RecipientReputation != 0 {
			if err := addReputation(tx, userID, eff.RecipientReputation); err != nil {
				return err
			}
		}
		if eff.SenderReputation != 0 {
			if err := addReputation(tx, alert.SenderID, eff.SenderReputation); err != nil {
				return err
			}
		}

		if eff.CountAcknowledged {
			if err := recordAcknowledgement(tx, userID, eff.ResponseSeconds); err != nil {
				return err
			}
		}
		if eff.CountResolved {
			if err := bumpStat(tx, userID, "alerts_resolved"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *alertRepository) MarkDelivered(alertID, userID string, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&alertdomain.AlertRecipient{}).
			Where("alert_id = ? AND user_id = ? AND status = ?", alertID, userID, alertdomain.RecipientStatusSent).
			Updates(map[string]interface{}{
				"status":       alertdomain.RecipientStatusDelivered,
				"delivered_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Repeat call or recipient already moved further: fine.
			// Unknown recipient: reject.
			var count int64
			if err := tx.Model(&alertdomain.AlertRecipient{}).
				Where("alert_id = ? AND user_id = ?", alertID, userID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return alertdomain.ErrNotFound
			}
			return nil
		}

		return tx.Model(&alertdomain.Alert{}).
			Where("id = ? AND status = ?", alertID, alertdomain.AlertStatusSent).
			Update("status", alertdomain.AlertStatusDelivered).Error
	})
}

func (r *alertRepository) UpdateStatus(alertID string, allowedFrom []alertdomain.AlertStatus, to alertdomain.AlertStatus) error {
	result := r.db.Model(&alertdomain.Alert{}).
		Where("id = ? AND status IN ?", alertID, allowedFrom).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&alertdomain.Alert{}).Where("id = ?", alertID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return alertdomain.ErrNotFound
		}
		return alertdomain.ErrInvalidTransition
	}
	return nil
}

func (r *alertRepository) ListForEscalation(now time.Time) ([]alertdomain.Alert, error) {
	var candidates []alertdomain.Alert
	err := r.db.Where("status IN ? AND expires_at > ? AND last_escalated_at <= ?",
		[]alertdomain.AlertStatus{alertdomain.AlertStatusSent, alertdomain.AlertStatusDelivered},
		now, now.Add(-minEscalationInterval)).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	// Exact per-tier check; the SQL filter only trims the scan.
	var due []alertdomain.Alert
	for _, a := range candidates {
		if now.Sub(a.LastEscalatedAt) >= a.Urgency.EscalationInterval() {
			due = append(due, a)
		}
	}
	return due, nil
}

func (r *alertRepository) BumpEscalation(alertID string, step int, now time.Time) error {
	return r.db.Model(&alertdomain.Alert{}).Where("id = ?", alertID).
		Updates(map[string]interface{}{
			"escalation_step":   step,
			"last_escalated_at": now,
		}).Error
}

func (r *alertRepository) ExpireOverdue(now time.Time) (int64, error) {
	result := r.db.Model(&alertdomain.Alert{}).
		Where("status IN ? AND expires_at <= ?",
			[]alertdomain.AlertStatus{alertdomain.AlertStatusSent, alertdomain.AlertStatusDelivered}, now).
		Update("status", alertdomain.AlertStatusExpired)
	return result.RowsAffected, result.Error
}

func (r *alertRepository) PendingRecipientIDs(alertID string) ([]string, error) {
	var userIDs []string
	err := r.db.Model(&alertdomain.AlertRecipient{}).
		Where("alert_id = ? AND status IN ?", alertID,
			[]alertdomain.RecipientStatus{alertdomain.RecipientStatusSent, alertdomain.RecipientStatusDelivered}).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *alertRepository) ListBySender(senderID string) ([]alertdomain.Alert, error) {
	var alerts []alertdomain.Alert
	err := r.db.Preload("Recipients").Where("sender_id = ?", senderID).
		Order("sent_at DESC").Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) ListForRecipient(userID string) ([]alertdomain.Alert, error) {
	var alerts []alertdomain.Alert
	err := r.db.Preload("Recipients").
		Joins("JOIN alert_recipients ON alert_recipients.alert_id = alerts.id").
		Where("alert_recipients.user_id = ?", userID).
		Order("alerts.sent_at DESC").Find(&alerts).Error
	return alerts, err
}

func addReputation(tx *gorm.DB, userID string, delta int) error {
	return tx.Model(&authdomain.User{}).Where("id = ?", userID).
		Update("reputation", gorm.Expr("reputation + ?", delta)).Error
}
