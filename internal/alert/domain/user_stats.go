package domain

import "time"

// UserStats holds per-user counters derived from alert activity.
// It is an eventually-consistent aggregate, recomputable from the
// Alert/AlertRecipient history, never the system of record.
type UserStats struct {
	UserID             string    `json:"user_id" gorm:"primaryKey"`
	PlatesRegistered   int       `json:"plates_registered" gorm:"default:0"`
	AlertsSent         int       `json:"alerts_sent" gorm:"default:0"`
	AlertsReceived     int       `json:"alerts_received" gorm:"default:0"`
	AlertsAcknowledged int       `json:"alerts_acknowledged" gorm:"default:0"`
	AlertsResolved     int       `json:"alerts_resolved" gorm:"default:0"`
	AvgResponseSeconds float64   `json:"avg_response_seconds" gorm:"default:0"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Reputation deltas applied exactly once per qualifying recipient transition.
const (
	ReputationAcknowledge     = 5  // recipient acknowledged an alert
	ReputationResolveOwner    = 15 // recipient resolved (moved the car)
	ReputationResolveReporter = 10 // sender whose alert got resolved
)
