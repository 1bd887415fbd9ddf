package service

import (
	"graceway-go/internal/model"
	"graceway-go/internal/repository"
)

// AssistantService defines companion-listing business logic.
type AssistantService interface {
	// ListEffective returns the assistants surfaced to the user: global
	// and org-scoped candidates merged down to one representative per role.
	ListEffective(user *model.User) ([]model.Assistant, error)
}

type assistantService struct {
	assistantRepo repository.AssistantRepository
}

// NewAssistantService creates a new AssistantService.
func NewAssistantService(assistantRepo repository.AssistantRepository) AssistantService {
	return &assistantService{assistantRepo: assistantRepo}
}

// ListEffective merges global and org-scoped personas. An org-scoped persona
// shadows the global one for the same role, so the UI always gets at most
// one assistant per role.
func (s *assistantService) ListEffective(user *model.User) ([]model.Assistant, error) {
	candidates, err := s.assistantRepo.FindActiveForOrg(user.OrgTag)
	if err != nil {
		return nil, err
	}

	byRole := make(map[string]model.Assistant)
	for _, a := range candidates {
		existing, seen := byRole[a.Role]
		if !seen {
			byRole[a.Role] = a
			continue
		}
		// Org-scoped wins over global.
		if existing.OrgTag == nil && a.OrgTag != nil {
			byRole[a.Role] = a
		}
	}

	effective := make([]model.Assistant, 0, len(byRole))
	for _, role := range model.CompanionRoles {
		if a, ok := byRole[role]; ok {
			effective = append(effective, a)
		}
	}
	return effective, nil
}
