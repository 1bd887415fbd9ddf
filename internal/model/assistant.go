package model

import "time"

// Companion roles. Each user sees at most one effective assistant per role.
const (
	RoleDad         = "dad"
	RoleMom         = "mom"
	RoleSon         = "son"
	RoleDaughter    = "daughter"
	RoleCoach       = "coach"
	RoleChurchLead  = "church_leader"
	RoleSingleMan   = "single_man"
	RoleSingleWoman = "single_woman"
)

// CompanionRoles lists the fixed role set in display order.
var CompanionRoles = []string{
	RoleDad, RoleMom, RoleSon, RoleDaughter,
	RoleCoach, RoleChurchLead, RoleSingleMan, RoleSingleWoman,
}

// IsCompanionRole reports whether role belongs to the fixed set.
func IsCompanionRole(role string) bool {
	for _, r := range CompanionRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Assistant corresponds to the 'assistants' table. It is a persona
// configuration created by administrators and read-only to the relay.
type Assistant struct {
	ID          string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(100);not null" json:"name"`
	Role        string `gorm:"type:varchar(30);index;not null" json:"role"`
	Description string `gorm:"type:text" json:"description"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
	// OrgTag scopes the assistant to one organization. NULL means
	// globally visible.
	OrgTag *string `gorm:"type:varchar(100);index" json:"orgTag"`
	// OpenAIAssistantID is the handle of the pre-provisioned LLM
	// assistant resource. NULL means the relay uses the fallback path.
	OpenAIAssistantID *string   `gorm:"type:varchar(100)" json:"openaiAssistantId"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the database table for this model.
func (Assistant) TableName() string {
	return "assistants"
}
