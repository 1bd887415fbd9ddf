package repository

import (
	"errors"

	"graceway-go/internal/model"

	"gorm.io/gorm"
)

// PreferenceRepository defines persistence operations for per-user context
// toggles. Rows are created lazily with defaults on first access.
type PreferenceRepository interface {
	GetOrCreate(userID uint) (*model.UserPreference, error)
	Update(pref *model.UserPreference) error
}

type preferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

// GetOrCreate fetches the user's preferences, inserting defaults when no
// row exists yet.
func (r *preferenceRepository) GetOrCreate(userID uint) (*model.UserPreference, error) {
	var pref model.UserPreference
	err := r.db.Where("user_id = ?", userID).First(&pref).Error
	if err == nil {
		return &pref, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	pref = model.UserPreference{
		UserID:           userID,
		IncludeDevotions: true,
		IncludeJournal:   true,
		IncludeFitness:   false,
	}
	if err := r.db.Create(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

// Update saves changed preference flags.
func (r *preferenceRepository) Update(pref *model.UserPreference) error {
	return r.db.Save(pref).Error
}
