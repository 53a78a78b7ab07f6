package models

import "time"

// Reward 表示一个兑换目标
// IsRedeemed 置位后奖励进入终态，不允许再次兑换或修改参与者
type Reward struct {
	ID         uint       `gorm:"primaryKey"`
	Name       string     `gorm:"size:255;not null"`
	Image      string     `gorm:"size:255"` // 图片文件名（上传目录内）
	StarCost   int        `gorm:"not null"`
	IsRedeemed bool       `gorm:"not null;default:false"`
	RedeemedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RewardChild 是奖励和参与孩子的关联记录
// DeductionAmount 兑换前为 NULL，兑换完成后记录每个孩子实际扣掉的星星数
// （包括扣 0 颗的参与者，兑换后记 0 而不是保持 NULL）
type RewardChild struct {
	ID              uint `gorm:"primaryKey"`
	RewardID        uint `gorm:"uniqueIndex:idx_reward_child;not null"`
	ChildID         uint `gorm:"uniqueIndex:idx_reward_child;not null"`
	DeductionAmount *int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Reward Reward `gorm:"constraint:OnDelete:CASCADE"`
	Child  Child  `gorm:"constraint:OnDelete:CASCADE"`
}

// TableName 固定为 reward_children，避开 gorm 对 child 的复数推断
func (RewardChild) TableName() string {
	return "reward_children"
}
