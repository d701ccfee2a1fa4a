package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validator validates catalog files before they are seeded.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the catalog and returns the first failure found:
//   - IDs are positive and unique per entity
//   - category names are unique (case-insensitive)
//   - every quest references a known category and has a valid difficulty
//   - every badge requirement builds
func (v *Validator) Validate(config *Config) error {
	if len(config.Quests) == 0 && len(config.Badges) == 0 {
		return errors.New("catalog must define at least one quest or badge")
	}

	categoryIDs := make(map[int64]bool)
	categoryNames := make(map[string]bool)
	for _, c := range config.Categories {
		if err := v.validateCategory(c); err != nil {
			return fmt.Errorf("invalid category %d: %w", c.ID, err)
		}
		if categoryIDs[c.ID] {
			return fmt.Errorf("duplicate category ID: %d", c.ID)
		}
		name := strings.ToLower(c.Name)
		if categoryNames[name] {
			return fmt.Errorf("duplicate category name: %s", c.Name)
		}
		categoryIDs[c.ID] = true
		categoryNames[name] = true
	}

	questIDs := make(map[int64]bool)
	for _, q := range config.Quests {
		if err := v.validateQuest(q); err != nil {
			return fmt.Errorf("invalid quest %d: %w", q.ID, err)
		}
		if !categoryNames[strings.ToLower(q.Category)] {
			return fmt.Errorf("quest %d references unknown category '%s'", q.ID, q.Category)
		}
		if questIDs[q.ID] {
			return fmt.Errorf("duplicate quest ID: %d", q.ID)
		}
		questIDs[q.ID] = true
	}

	badgeIDs := make(map[int64]bool)
	for _, b := range config.Badges {
		if err := v.validateBadge(b); err != nil {
			return fmt.Errorf("invalid badge %d: %w", b.ID, err)
		}
		if badgeIDs[b.ID] {
			return fmt.Errorf("duplicate badge ID: %d", b.ID)
		}
		badgeIDs[b.ID] = true
	}

	return nil
}

func (v *Validator) validateCategory(c *CategoryConfig) error {
	if c.ID <= 0 {
		return errors.New("category ID must be positive")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("category name cannot be empty")
	}
	return nil
}

func (v *Validator) validateQuest(q *QuestConfig) error {
	if q.ID <= 0 {
		return errors.New("quest ID must be positive")
	}
	if strings.TrimSpace(q.Title) == "" {
		return errors.New("quest title cannot be empty")
	}
	if !q.Difficulty.IsValid() {
		return fmt.Errorf("invalid difficulty '%s' (must be 'easy', 'medium' or 'hard')", q.Difficulty)
	}
	if q.Points <= 0 {
		return errors.New("points must be positive")
	}
	if q.EstimatedMinutes < 0 {
		return errors.New("estimated_minutes cannot be negative")
	}
	return nil
}

func (v *Validator) validateBadge(b *BadgeConfig) error {
	if b.ID <= 0 {
		return errors.New("badge ID must be positive")
	}
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("badge name cannot be empty")
	}
	if _, err := b.RequirementSpec.Build(); err != nil {
		return err
	}
	return nil
}
