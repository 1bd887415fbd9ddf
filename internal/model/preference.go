package model

import "time"

// UserPreference corresponds to the 'user_preferences' table. It holds the
// per-user context toggles folded into the LLM prompt plus the preferred
// companion role. Rows are created lazily with defaults on first access and
// never deleted.
type UserPreference struct {
	UserID           uint      `gorm:"primaryKey" json:"userId"`
	PreferredRole    string    `gorm:"type:varchar(30)" json:"preferredRole"`
	IncludeDevotions bool      `gorm:"not null;default:true" json:"includeDevotions"`
	IncludeJournal   bool      `gorm:"not null;default:true" json:"includeJournal"`
	IncludeFitness   bool      `gorm:"not null;default:false" json:"includeFitness"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the database table for this model.
func (UserPreference) TableName() string {
	return "user_preferences"
}
