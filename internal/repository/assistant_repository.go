package repository

import (
	"graceway-go/internal/model"

	"gorm.io/gorm"
)

// AssistantRepository defines read access to the persona configurations.
// Personas are created and edited by administrators outside this service.
type AssistantRepository interface {
	FindByID(id string) (*model.Assistant, error)
	// FindActiveByRole returns the active assistant for a role visible to
	// the given org: an org-scoped persona wins over a global one.
	FindActiveByRole(role, orgTag string) (*model.Assistant, error)
	// FindActiveForOrg returns all active assistants visible to the org
	// (global plus org-scoped).
	FindActiveForOrg(orgTag string) ([]model.Assistant, error)
}

type assistantRepository struct {
	db *gorm.DB
}

// NewAssistantRepository creates a new AssistantRepository.
func NewAssistantRepository(db *gorm.DB) AssistantRepository {
	return &assistantRepository{db: db}
}

// FindByID looks up an assistant by primary key.
func (r *assistantRepository) FindByID(id string) (*model.Assistant, error) {
	var assistant model.Assistant
	err := r.db.Where("id = ?", id).First(&assistant).Error
	if err != nil {
		return nil, err
	}
	return &assistant, nil
}

// FindActiveByRole resolves the effective persona for one role.
func (r *assistantRepository) FindActiveByRole(role, orgTag string) (*model.Assistant, error) {
	var assistant model.Assistant
	query := r.db.Where("role = ? AND active = ?", role, true)
	if orgTag != "" {
		// Org-scoped personas sort before global ones.
		query = query.Where("org_tag = ? OR org_tag IS NULL", orgTag).
			Order("org_tag IS NULL")
	} else {
		query = query.Where("org_tag IS NULL")
	}
	err := query.First(&assistant).Error
	if err != nil {
		return nil, err
	}
	return &assistant, nil
}

// FindActiveForOrg lists all active assistants visible to the org.
func (r *assistantRepository) FindActiveForOrg(orgTag string) ([]model.Assistant, error) {
	var assistants []model.Assistant
	query := r.db.Where("active = ?", true)
	if orgTag != "" {
		query = query.Where("org_tag = ? OR org_tag IS NULL", orgTag)
	} else {
		query = query.Where("org_tag IS NULL")
	}
	err := query.Order("role, org_tag IS NULL").Find(&assistants).Error
	return assistants, err
}
