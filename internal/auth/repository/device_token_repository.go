package repository

import (
	"time"

	authdomain "plateping-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceTokenRepository defines the interface for push device token operations
type DeviceTokenRepository interface {
	SaveToken(userID, token, platform string) error
	GetTokensByUserID(userID string) ([]authdomain.DeviceToken, error)
	DeleteToken(token string) error
	DeleteTokens(userID string, tokens []string) error
	DeleteTokensByUserID(userID string) error
}

// deviceTokenRepository implements DeviceTokenRepository interface
type deviceTokenRepository struct {
	db *gorm.DB
}

// NewDeviceTokenRepository creates a new instance of deviceTokenRepository
func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{
		db: db,
	}
}

// SaveToken saves or refreshes a device token for a user (atomic upsert).
// A user holds at most MaxDeviceTokens live tokens; the oldest are evicted
// in the same transaction so the cap cannot be raced past.
func (r *deviceTokenRepository) SaveToken(userID, token, platform string) error {
	deviceToken := &authdomain.DeviceToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		// Atomic upsert: INSERT ... ON CONFLICT (token) DO UPDATE
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
		}).Create(deviceToken).Error
		if err != nil {
			return err
		}

		// Evict oldest tokens beyond the cap, most recent registrations win
		var tokens []authdomain.DeviceToken
		if err := tx.Where("user_id = ?", userID).Order("updated_at DESC").Find(&tokens).Error; err != nil {
			return err
		}
		if len(tokens) <= authdomain.MaxDeviceTokens {
			return nil
		}
		var evict []string
		for _, t := range tokens[authdomain.MaxDeviceTokens:] {
			evict = append(evict, t.ID)
		}
		return tx.Where("id IN ?", evict).Delete(&authdomain.DeviceToken{}).Error
	})
}

// GetTokensByUserID returns all live device tokens for a user
func (r *deviceTokenRepository) GetTokensByUserID(userID string) ([]authdomain.DeviceToken, error) {
	var tokens []authdomain.DeviceToken
	err := r.db.Where("user_id = ?", userID).Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteToken removes a specific device token
func (r *deviceTokenRepository) DeleteToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&authdomain.DeviceToken{}).Error
}

// DeleteTokens removes a batch of dead tokens for one user in a single statement.
// Used by the dispatcher to prune tokens the provider reported as unregistered.
func (r *deviceTokenRepository) DeleteTokens(userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.Where("user_id = ? AND token IN ?", userID, tokens).Delete(&authdomain.DeviceToken{}).Error
}

// DeleteTokensByUserID removes all device tokens for a user
func (r *deviceTokenRepository) DeleteTokensByUserID(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&authdomain.DeviceToken{}).Error
}
