package domain

import "time"

// PlateRegistration links a user to a plate fingerprint they want alerts for.
// The mapping is deliberately non-unique: several users (household, car pool)
// may register the same fingerprint, and no ownership check is performed.
type PlateRegistration struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"user_id" gorm:"index:idx_user_plate,unique;not null"`
	PlateFingerprint string    `json:"plate_fingerprint" gorm:"index:idx_user_plate,unique;index;not null"`
	Alias            string    `json:"alias,omitempty"` // "my car", "mom's van"
	CreatedAt        time.Time `json:"created_at"`
}
