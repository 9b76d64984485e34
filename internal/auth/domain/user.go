package domain

import "time"

// DefaultReputation is the score every account starts with.
const DefaultReputation = 100

type User struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"uniqueIndex;not null"`
	Password   string    `json:"-"` // Never return password in JSON
	Name       string    `json:"name"`
	Reputation int       `json:"reputation" gorm:"default:100"`
	Premium    bool      `json:"premium" gorm:"default:false"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}
