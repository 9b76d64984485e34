package repository

import (
	"time"

	alertdomain "plateping-backend/internal/alert/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlateRegistrationRepository owns the fingerprint -> interested users mapping.
type PlateRegistrationRepository interface {
	// Register stores the registration and reports whether a new row was
	// created (false when the user already registered this fingerprint).
	Register(reg *alertdomain.PlateRegistration) (bool, error)
	Unregister(userID, fingerprint string) error
	ListByUser(userID string) ([]alertdomain.PlateRegistration, error)
	// ResolveRecipients returns the distinct set of users with a live
	// registration for the fingerprint. An empty result is valid.
	ResolveRecipients(fingerprint string) ([]string, error)
}

type plateRegistrationRepository struct {
	db *gorm.DB
}

// NewPlateRegistrationRepository creates a new instance of plateRegistrationRepository
func NewPlateRegistrationRepository(db *gorm.DB) PlateRegistrationRepository {
	return &plateRegistrationRepository{
		db: db,
	}
}

func (r *plateRegistrationRepository) Register(reg *alertdomain.PlateRegistration) (bool, error) {
	reg.ID = uuid.New().String()
	reg.CreatedAt = time.Now()

	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Re-registering the same (user, fingerprint) pair is a no-op
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "plate_fingerprint"}},
			DoNothing: true,
		}).Create(reg)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true
		return bumpStat(tx, reg.UserID, "plates_registered")
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *plateRegistrationRepository) Unregister(userID, fingerprint string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND plate_fingerprint = ?", userID, fingerprint).
			Delete(&alertdomain.PlateRegistration{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return alertdomain.ErrNotFound
		}
		return tx.Model(&alertdomain.UserStats{}).
			Where("user_id = ? AND plates_registered > 0", userID).
			Update("plates_registered", gorm.Expr("plates_registered - 1")).Error
	})
}

func (r *plateRegistrationRepository) ListByUser(userID string) ([]alertdomain.PlateRegistration, error) {
	var regs []alertdomain.PlateRegistration
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *plateRegistrationRepository) ResolveRecipients(fingerprint string) ([]string, error) {
	var userIDs []string
	err := r.db.Model(&alertdomain.PlateRegistration{}).
		Where("plate_fingerprint = ?", fingerprint).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
