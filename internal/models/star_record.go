package models

import "time"

// 星星流水的类型
const (
	KindAdd      = "add"      // 手动加星
	KindSubtract = "subtract" // 手动减星
	KindRedeem   = "redeem"   // 兑换奖励扣星
)

// StarRecord 是一条星星变动流水，只追加，永不修改或删除
// 需要更正时追加一条反向流水，而不是改旧记录
type StarRecord struct {
	ID        uint      `gorm:"primaryKey"`
	ChildID   uint      `gorm:"index:idx_child_created;not null"`
	Amount    int       `gorm:"not null"`         // 加星为正，减星/兑换为负
	Kind      string    `gorm:"size:16;not null"` // add / subtract / redeem
	RewardID  *uint     `gorm:"index"`            // 仅 kind=redeem 时有值
	Reason    string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index:idx_child_created"`

	Child  Child   `gorm:"constraint:OnDelete:CASCADE"`
	Reward *Reward `gorm:"constraint:OnDelete:SET NULL"`
}
