package models

import "time"

// AuditLog 记录所有写操作，方便家长回查是谁在什么时候动了星星
type AuditLog struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"size:255"`
	Method    string `gorm:"size:16"`
	Action    string `gorm:"size:2048"` // 方法 + 路径 + 请求体摘要
	IP        string `gorm:"size:64"`
	UserAgent string `gorm:"size:255"`
	Status    int
	CreatedAt time.Time
}
