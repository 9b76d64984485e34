package repository

import (
	"errors"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserStatsRepository maintains the derived per-user counters.
type UserStatsRepository interface {
	Get(userID string) (*alertdomain.UserStats, error)
}

type userStatsRepository struct {
	db *gorm.DB
}

// NewUserStatsRepository creates a new instance of userStatsRepository
func NewUserStatsRepository(db *gorm.DB) UserStatsRepository {
	return &userStatsRepository{
		db: db,
	}
}

func (r *userStatsRepository) Get(userID string) (*alertdomain.UserStats, error) {
	var stats alertdomain.UserStats
	err := r.db.Where("user_id = ?", userID).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &alertdomain.UserStats{UserID: userID}, nil
		}
		return nil, err
	}
	return &stats, nil
}

// The increment helpers below run inside the caller's transaction so counters
// cannot drift from the transition that triggered them.

func ensureStatsRow(tx *gorm.DB, userID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&alertdomain.UserStats{UserID: userID, UpdatedAt: time.Now()}).Error
}

func bumpStat(tx *gorm.DB, userID, column string) error {
	if err := ensureStatsRow(tx, userID); err != nil {
		return err
	}
	return tx.Model(&alertdomain.UserStats{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + 1"),
			"updated_at": time.Now(),
		}).Error
}

// recordAcknowledgement bumps the ack counter and folds the sample into the
// running response-time average in one statement; the right-hand side reads
// pre-update column values.
func recordAcknowledgement(tx *gorm.DB, userID string, responseSeconds float64) error {
	if err := ensureStatsRow(tx, userID); err != nil {
		return err
	}
	return tx.Model(&alertdomain.UserStats{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"alerts_acknowledged":  gorm.Expr("alerts_acknowledged + 1"),
			"avg_response_seconds": gorm.Expr("(avg_response_seconds * alerts_acknowledged + ?) / (alerts_acknowledged + 1)", responseSeconds),
			"updated_at":           time.Now(),
		}).Error
}
