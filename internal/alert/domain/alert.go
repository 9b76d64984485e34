package domain

import "time"

// Urgency represents how pressing a blockage report is
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// ValidUrgency reports whether u is a known urgency tier.
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

// DefaultTTL returns how long an alert stays live when the reporter did not
// pick a deadline. Lower urgency means a longer window.
func (u Urgency) DefaultTTL() time.Duration {
	switch u {
	case UrgencyUrgent:
		return 1 * time.Hour
	case UrgencyHigh:
		return 4 * time.Hour
	case UrgencyLow:
		return 24 * time.Hour
	default:
		return 12 * time.Hour
	}
}

// EscalationInterval returns how long an alert may sit unanswered before the
// escalator re-sends it with the next step of the message ladder.
func (u Urgency) EscalationInterval() time.Duration {
	switch u {
	case UrgencyUrgent:
		return 5 * time.Minute
	case UrgencyHigh:
		return 10 * time.Minute
	case UrgencyLow:
		return 1 * time.Hour
	default:
		return 20 * time.Minute
	}
}

// AlertStatus is the aggregate view over all recipients of an alert.
// It may lag individual recipient states and only ratchets forward.
type AlertStatus string

const (
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusDelivered    AlertStatus = "delivered"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusExpired      AlertStatus = "expired"
	AlertStatusCancelled    AlertStatus = "cancelled"
)

// Terminal reports whether the alert can no longer change state.
func (s AlertStatus) Terminal() bool {
	switch s {
	case AlertStatusResolved, AlertStatusExpired, AlertStatusCancelled:
		return true
	}
	return false
}

func (s AlertStatus) rank() int {
	switch s {
	case AlertStatusSent:
		return 0
	case AlertStatusDelivered:
		return 1
	case AlertStatusAcknowledged:
		return 2
	default:
		return 3
	}
}

// RecipientStatus is the per-recipient delivery/response state.
type RecipientStatus string

const (
	RecipientStatusSent         RecipientStatus = "sent"
	RecipientStatusDelivered    RecipientStatus = "delivered"
	RecipientStatusAcknowledged RecipientStatus = "acknowledged"
	RecipientStatusIgnored      RecipientStatus = "ignored"
	RecipientStatusResolved     RecipientStatus = "resolved"
)

// ValidRecipientStatus reports whether s is part of the recipient lattice.
func ValidRecipientStatus(s RecipientStatus) bool {
	switch s {
	case RecipientStatusSent, RecipientStatusDelivered, RecipientStatusAcknowledged,
		RecipientStatusIgnored, RecipientStatusResolved:
		return true
	}
	return false
}

// Rank orders the recipient lattice: sent < delivered < acknowledged/ignored < resolved.
// Acknowledged and ignored are alternatives at the same level.
func (s RecipientStatus) Rank() int {
	switch s {
	case RecipientStatusSent:
		return 0
	case RecipientStatusDelivered:
		return 1
	case RecipientStatusAcknowledged, RecipientStatusIgnored:
		return 2
	default:
		return 3
	}
}

// Terminal reports whether the recipient state can no longer advance.
func (s RecipientStatus) Terminal() bool {
	return s == RecipientStatusResolved
}

// Alert is one blockage report fanned out to every user registered for the
// target plate fingerprint.
type Alert struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	SenderID         string      `json:"sender_id" gorm:"index;not null"`
	PlateFingerprint string      `json:"plate_fingerprint" gorm:"index;not null"`
	Urgency          Urgency     `json:"urgency" gorm:"not null"`
	Message          string      `json:"message,omitempty"`
	Status           AlertStatus `json:"status" gorm:"index;default:sent"`
	EscalationStep   int         `json:"escalation_step" gorm:"default:0"`
	LastEscalatedAt  time.Time   `json:"last_escalated_at"`
	SentAt           time.Time   `json:"sent_at"`
	ExpiresAt        time.Time   `json:"expires_at" gorm:"index"`

	Recipients []AlertRecipient `json:"recipients,omitempty" gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the alert's deadline has passed.
func (a *Alert) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// AlertRecipient is the per-user delivery record created once per fanout member.
type AlertRecipient struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	AlertID        string          `json:"alert_id" gorm:"index:idx_alert_user,unique;not null"`
	UserID         string          `json:"user_id" gorm:"index:idx_alert_user,unique;not null"`
	Status         RecipientStatus `json:"status" gorm:"index;default:sent"`
	Response       string          `json:"response,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Response vocabulary accepted at the respond boundary.
const (
	ResponseOnMyWay   = "on_my_way"
	ResponseMovingNow = "moving_now"
	ResponseCantMove  = "cant_move"
)

// ValidResponse reports whether kind is part of the fixed response vocabulary.
func ValidResponse(kind string) bool {
	switch kind {
	case ResponseOnMyWay, ResponseMovingNow, ResponseCantMove:
		return true
	}
	return false
}
