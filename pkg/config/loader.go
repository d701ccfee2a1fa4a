package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

// ConfigLoader loads and validates the quest and badge catalog from a JSON file.
type ConfigLoader struct {
	configPath string
	validator  *Validator
	logger     *slog.Logger
}

// NewConfigLoader creates a new ConfigLoader instance.
//
// Parameters:
//   - configPath: Path to the catalog.json file
//   - logger: Structured logger for operational logging
func NewConfigLoader(configPath string, logger *slog.Logger) *ConfigLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigLoader{
		configPath: configPath,
		validator:  NewValidator(),
		logger:     logger,
	}
}

// LoadConfig reads, parses and validates the catalog file.
// Invalid catalogs are rejected as a whole.
func (l *ConfigLoader) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", errors.ErrConfigNotFound(l.configPath, err))
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := l.validator.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", errors.ErrConfigInvalid(err.Error()))
	}

	l.logger.Info("Config loaded successfully",
		"categories", len(config.Categories),
		"quests", len(config.Quests),
		"badges", len(config.Badges),
		"config_path", l.configPath,
	)

	return &config, nil
}

// LoadCatalog loads the file and converts it to domain types.
func (l *ConfigLoader) LoadCatalog() (*Catalog, error) {
	config, err := l.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.Catalog()
}

// Catalog converts a validated Config to domain types, resolving quest
// categories by name.
func (c *Config) Catalog() (*Catalog, error) {
	catalog := &Catalog{
		Categories: make([]*domain.QuestCategory, 0, len(c.Categories)),
		Quests:     make([]*domain.Quest, 0, len(c.Quests)),
		Badges:     make([]*domain.Badge, 0, len(c.Badges)),
	}

	byName := make(map[string]*domain.QuestCategory, len(c.Categories))
	for _, cc := range c.Categories {
		category := &domain.QuestCategory{
			ID:       cc.ID,
			Name:     strings.TrimSpace(cc.Name),
			IsActive: activeOrDefault(cc.IsActive),
		}
		byName[strings.ToLower(category.Name)] = category
		catalog.Categories = append(catalog.Categories, category)
	}

	for _, qc := range c.Quests {
		category, ok := byName[strings.ToLower(strings.TrimSpace(qc.Category))]
		if !ok {
			return nil, fmt.Errorf("quest %d references unknown category '%s'", qc.ID, qc.Category)
		}
		catalog.Quests = append(catalog.Quests, &domain.Quest{
			ID:               qc.ID,
			CategoryID:       category.ID,
			Category:         category.Name,
			Title:            qc.Title,
			Description:      qc.Description,
			Difficulty:       qc.Difficulty,
			Points:           qc.Points,
			EstimatedMinutes: qc.EstimatedMinutes,
			IsActive:         activeOrDefault(qc.IsActive),
		})
	}

	for _, bc := range c.Badges {
		req, err := bc.RequirementSpec.Build()
		if err != nil {
			return nil, fmt.Errorf("badge %d: %w", bc.ID, err)
		}
		catalog.Badges = append(catalog.Badges, &domain.Badge{
			ID:          bc.ID,
			Name:        bc.Name,
			Description: bc.Description,
			Icon:        bc.Icon,
			Requirement: req,
		})
	}

	return catalog, nil
}
