package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Setting 是全局配置项，比如单次最多能加多少颗星星
type Setting struct {
	ID          uint   `gorm:"primaryKey"`
	Key         string `gorm:"size:64;uniqueIndex;not null"`
	Value       string `gorm:"type:text;not null"`
	Type        string `gorm:"size:16;not null;default:string"` // string / integer / json
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GetSetting 按 key 取配置项，不存在时返回 gorm.ErrRecordNotFound
func GetSetting(db *gorm.DB, key string) (*Setting, error) {
	var s Setting
	if err := db.Where("key = ?", key).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSettingInt 取整数配置，缺失或解析失败时用兜底值
func GetSettingInt(db *gorm.DB, key string, fallback int) int {
	s, err := GetSetting(db, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(s.Value)
	if err != nil {
		return fallback
	}
	return n
}

// SetSetting 更新（或创建）配置项
func SetSetting(db *gorm.DB, key, value, typ, description string) error {
	var s Setting
	err := db.Where("key = ?", key).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&Setting{
			Key:         key,
			Value:       value,
			Type:        typ,
			Description: description,
		}).Error
	}
	if err != nil {
		return err
	}
	s.Value = value
	return db.Save(&s).Error
}
