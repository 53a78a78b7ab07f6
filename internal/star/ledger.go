package star

import (
	"errors"

	"github.com/zhy0504/star-savings/internal/models"

	"gorm.io/gorm"
)

// Ledger 是星星流水的唯一写入口。
// 每条流水和孩子的 star_count 冗余字段在同一个事务里落库，
// 保证任何时刻 star_count 都等于该孩子全部流水的累加。
type Ledger struct {
	DB *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// Append 追加一条流水并同步调整孩子的余额。
// 孩子不存在时返回 ErrChildNotFound，此时不产生任何副作用。
func (l *Ledger) Append(childID uint, amount int, kind, reason string, rewardID *uint) (*models.StarRecord, error) {
	var record *models.StarRecord
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = appendTx(tx, childID, amount, kind, reason, rewardID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// appendTx 在调用方的事务里追加流水，供 Append 和兑换引擎复用。
// 流水写入和余额调整必须同生共死，所以不允许脱离事务调用。
func appendTx(tx *gorm.DB, childID uint, amount int, kind, reason string, rewardID *uint) (*models.StarRecord, error) {
	var child models.Child
	if err := tx.First(&child, childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChildNotFound
		}
		return nil, err
	}

	record := models.StarRecord{
		ChildID:  childID,
		Amount:   amount,
		Kind:     kind,
		RewardID: rewardID,
		Reason:   reason,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&models.Child{}).
		Where("id = ?", childID).
		UpdateColumn("star_count", gorm.Expr("star_count + ?", amount)).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

// BalanceOf 返回孩子当前的星星余额（读冗余字段，O(1)）。
func (l *Ledger) BalanceOf(childID uint) (int, error) {
	var child models.Child
	if err := l.DB.Select("id", "star_count").First(&child, childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrChildNotFound
		}
		return 0, err
	}
	return child.StarCount, nil
}

// History 返回孩子的流水，按时间倒序，limit 限制条数，
// offset 用于翻页续查，服务端不保存游标状态。
func (l *Ledger) History(childID uint, limit, offset int) ([]models.StarRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var count int64
	if err := l.DB.Model(&models.Child{}).Where("id = ?", childID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrChildNotFound
	}

	var records []models.StarRecord
	if err := l.DB.Where("child_id = ?", childID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// AddStars 手动加星，amount 必须为正。
// 单次上限由外部设置（max_stars_per_add）负责，这里不管。
func (l *Ledger) AddStars(childID uint, amount int, reason string) (*models.StarRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidArgument
	}
	return l.Append(childID, amount, models.KindAdd, reason, nil)
}

// SubtractStars 手动减星，amount 必须为正。
// 余额不足时整笔失败，流水和余额都保持原样。
func (l *Ledger) SubtractStars(childID uint, amount int, reason string) (*models.StarRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidArgument
	}

	var record *models.StarRecord
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var child models.Child
		if err := tx.First(&child, childID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChildNotFound
			}
			return err
		}
		if child.StarCount < amount {
			return &InsufficientBalanceError{
				ChildID:   child.ID,
				Name:      child.Name,
				Balance:   child.StarCount,
				Requested: amount,
			}
		}

		var err error
		record, err = appendTx(tx, childID, -amount, models.KindSubtract, reason, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
