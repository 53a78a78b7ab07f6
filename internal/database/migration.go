package database

import (
	"fmt"

	"github.com/zhy0504/star-savings/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Child{},
		&models.Reward{},
		&models.RewardChild{},
		&models.StarRecord{},
		&models.Setting{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return SeedDefaultSettings(db)
}

// SeedDefaultSettings 写入默认配置项，已存在的 key 不覆盖
func SeedDefaultSettings(db *gorm.DB) error {
	defaults := []models.Setting{
		{
			Key:         "max_stars_per_add",
			Value:       "100",
			Type:        "integer",
			Description: "每次加星星的最大数量",
		},
		{
			Key:         "add_star_reasons",
			Value:       `[{"emoji":"😊","text":"认真"},{"emoji":"🏃","text":"主动"},{"emoji":"😴","text":"按时"},{"emoji":"🤝","text":"分享"}]`,
			Type:        "json",
			Description: "加星星的理由标签",
		},
		{
			Key:         "subtract_star_reasons",
			Value:       `[{"emoji":"😢","text":"不听话"},{"emoji":"🎮","text":"玩太久"},{"emoji":"😴","text":"不按时"},{"emoji":"😤","text":"发脾气"}]`,
			Type:        "json",
			Description: "减星星的理由标签",
		},
	}

	for _, s := range defaults {
		var count int64
		if err := db.Model(&models.Setting{}).Where("key = ?", s.Key).Count(&count).Error; err != nil {
			return fmt.Errorf("check setting %s: %w", s.Key, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&s).Error; err != nil {
			return fmt.Errorf("seed setting %s: %w", s.Key, err)
		}
	}
	return nil
}
