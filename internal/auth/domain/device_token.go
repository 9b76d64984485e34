package domain

import "time"

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// MaxDeviceTokens caps the number of live push tokens per user.
// Registering a sixth device evicts the oldest token.
const MaxDeviceTokens = 5

// DeviceToken represents a registered push device for a user.
// A user may hold several live tokens, one per installed device.
type DeviceToken struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Token     string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	Platform  string    `json:"platform" gorm:"not null"`      // "ios", "android" or "web"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidPlatform reports whether p is one of the supported platforms.
func ValidPlatform(p string) bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}
