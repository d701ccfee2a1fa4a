package config

import "github.com/questie/progression-engine/pkg/domain"

// Config is the quest and badge catalog as parsed from catalog.json.
type Config struct {
	Categories []*CategoryConfig `json:"categories"`
	Quests     []*QuestConfig    `json:"quests"`
	Badges     []*BadgeConfig    `json:"badges"`
}

// CategoryConfig is one quest category entry.
type CategoryConfig struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active,omitempty"`
}

// QuestConfig is one quest entry. Category references a category by name.
type QuestConfig struct {
	ID               int64             `json:"id"`
	Category         string            `json:"category"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Difficulty       domain.Difficulty `json:"difficulty"`
	Points           int               `json:"points"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	IsActive         *bool             `json:"is_active,omitempty"`
}

// BadgeConfig is one badge entry. Requirement fields are flat, using the
// same requirement_* names as the badge table.
type BadgeConfig struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	domain.RequirementSpec
}

// Catalog is a validated Config converted to domain types.
type Catalog struct {
	Categories []*domain.QuestCategory
	Quests     []*domain.Quest
	Badges     []*domain.Badge
}

func activeOrDefault(v *bool) bool {
	return v == nil || *v
}
