package service

import (
	"fmt"

	"graceway-go/internal/model"
	"graceway-go/internal/repository"
)

// PreferenceService defines access to the per-user context toggles.
type PreferenceService interface {
	Get(userID uint) (*model.UserPreference, error)
	Update(userID uint, update PreferenceUpdate) (*model.UserPreference, error)
}

// PreferenceUpdate carries the fields a user may change. Nil pointers leave
// the stored value untouched.
type PreferenceUpdate struct {
	PreferredRole    *string
	IncludeDevotions *bool
	IncludeJournal   *bool
	IncludeFitness   *bool
}

type preferenceService struct {
	prefRepo repository.PreferenceRepository
}

// NewPreferenceService creates a new PreferenceService.
func NewPreferenceService(prefRepo repository.PreferenceRepository) PreferenceService {
	return &preferenceService{prefRepo: prefRepo}
}

// Get returns the user's preferences, creating defaults on first access.
func (s *preferenceService) Get(userID uint) (*model.UserPreference, error) {
	return s.prefRepo.GetOrCreate(userID)
}

// Update applies the changed fields and saves.
func (s *preferenceService) Update(userID uint, update PreferenceUpdate) (*model.UserPreference, error) {
	pref, err := s.prefRepo.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	if update.PreferredRole != nil {
		if *update.PreferredRole != "" && !model.IsCompanionRole(*update.PreferredRole) {
			return nil, fmt.Errorf("unknown companion role: %s", *update.PreferredRole)
		}
		pref.PreferredRole = *update.PreferredRole
	}
	if update.IncludeDevotions != nil {
		pref.IncludeDevotions = *update.IncludeDevotions
	}
	if update.IncludeJournal != nil {
		pref.IncludeJournal = *update.IncludeJournal
	}
	if update.IncludeFitness != nil {
		pref.IncludeFitness = *update.IncludeFitness
	}

	if err := s.prefRepo.Update(pref); err != nil {
		return nil, err
	}
	return pref, nil
}
