package models

import "time"

// Child 表示一个攒星星的孩子
// StarCount 是冗余的余额字段，真实来源是 star_records 的累加，
// 只允许通过 star 包的账本操作修改，任何地方都不能直接 UPDATE 它
type Child struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:64;not null"`
	Birthday  time.Time `gorm:"not null"`
	Gender    string    `gorm:"size:8;not null"` // male / female
	Avatar    string    `gorm:"size:255"`        // 头像文件名（上传目录内）
	StarCount int       `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 固定为 children，gorm 的默认复数规则对 child 不可靠
func (Child) TableName() string {
	return "children"
}

// Age 根据生日算年龄
func (c *Child) Age() int {
	now := time.Now()
	age := now.Year() - c.Birthday.Year()
	if now.Month() < c.Birthday.Month() ||
		(now.Month() == c.Birthday.Month() && now.Day() < c.Birthday.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age
}
