package star

import (
	"errors"
	"strings"
	"time"

	"github.com/zhy0504/star-savings/internal/models"

	"gorm.io/gorm"
)

// Engine 负责奖励兑换：校验扣星方案，然后在一个事务里
// 落流水、扣余额、记每个孩子的实际扣除额、把奖励置为已兑换。
type Engine struct {
	DB *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{DB: db}
}

// SQLite 并发写会报 busy，按乐观重试处理；
// 重试后能读到对方已提交的 is_redeemed，从而正确得到 ErrAlreadyRedeemed。
const redeemRetries = 5

// DefaultPlan 取出参与孩子的实时余额，算一份默认分摊方案。
// 方案只是建议值，家长可以改完再提交，最终以 Redeem 的校验为准。
func (e *Engine) DefaultPlan(rewardID uint) ([]Deduction, error) {
	var reward models.Reward
	if err := e.DB.First(&reward, rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	if reward.IsRedeemed {
		return nil, ErrAlreadyRedeemed
	}

	participants, err := loadParticipants(e.DB, rewardID)
	if err != nil {
		return nil, err
	}
	return Plan(participants, reward.StarCost)
}

// Redeem 按给定扣星方案兑换奖励。
// 校验按固定顺序执行，第一处不满足即返回对应错误，不产生任何副作用；
// 落账阶段整体在一个事务里，要么全部生效要么全部回滚。
func (e *Engine) Redeem(rewardID uint, deductions []Deduction) error {
	seen := make(map[uint]bool, len(deductions))
	for _, d := range deductions {
		if d.Amount < 0 || seen[d.ChildID] {
			return ErrInvalidArgument
		}
		seen[d.ChildID] = true
	}

	var err error
	for attempt := 0; attempt < redeemRetries; attempt++ {
		err = e.redeemOnce(rewardID, deductions)
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

func (e *Engine) redeemOnce(rewardID uint, deductions []Deduction) error {
	return e.DB.Transaction(func(tx *gorm.DB) error {
		var reward models.Reward
		if err := tx.First(&reward, rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRewardNotFound
			}
			return err
		}
		if reward.IsRedeemed {
			return ErrAlreadyRedeemed
		}

		// 先抢占兑换标志。带条件的 UPDATE 会立刻拿写锁，
		// 两个并发兑换在这里分胜负：输家要么影响 0 行，要么 busy 后重试看到终态。
		// 后面任何校验失败都会整体回滚，标志不会泄露出去。
		now := time.Now()
		claim := tx.Model(&models.Reward{}).
			Where("id = ? AND is_redeemed = ?", rewardID, false).
			Updates(map[string]interface{}{
				"is_redeemed": true,
				"redeemed_at": now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrAlreadyRedeemed
		}

		total := 0
		for _, d := range deductions {
			total += d.Amount
		}
		if total < reward.StarCost {
			return ErrInsufficientTotal
		}

		for _, d := range deductions {
			var child models.Child
			if err := tx.First(&child, d.ChildID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrChildNotFound
				}
				return err
			}
			if child.StarCount < d.Amount {
				return &InsufficientBalanceError{
					ChildID:   child.ID,
					Name:      child.Name,
					Balance:   child.StarCount,
					Requested: d.Amount,
				}
			}
		}

		var links []models.RewardChild
		if err := tx.Where("reward_id = ?", rewardID).Find(&links).Error; err != nil {
			return err
		}
		participantSet := make(map[uint]bool, len(links))
		for _, link := range links {
			participantSet[link.ChildID] = true
		}
		for _, d := range deductions {
			if !participantSet[d.ChildID] {
				return ErrInvalidParticipant
			}
		}

		// 校验全部通过，开始落账
		for _, d := range deductions {
			if d.Amount == 0 {
				continue
			}
			rid := rewardID
			if _, err := appendTx(tx, d.ChildID, -d.Amount, models.KindRedeem, "", &rid); err != nil {
				return err
			}
		}

		// 每个参与者都记下实际扣除额，没出力的记 0 而不是保持 NULL
		amounts := make(map[uint]int, len(deductions))
		for _, d := range deductions {
			amounts[d.ChildID] = d.Amount
		}
		for _, link := range links {
			if err := tx.Model(&models.RewardChild{}).
				Where("reward_id = ? AND child_id = ?", rewardID, link.ChildID).
				Update("deduction_amount", amounts[link.ChildID]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// loadParticipants 按加入奖励的先后顺序取参与者和实时余额。
func loadParticipants(db *gorm.DB, rewardID uint) ([]Participant, error) {
	var rows []struct {
		ChildID   uint
		StarCount int
	}
	err := db.Table("reward_children").
		Select("reward_children.child_id AS child_id, children.star_count AS star_count").
		Joins("JOIN children ON children.id = reward_children.child_id").
		Where("reward_children.reward_id = ?", rewardID).
		Order("reward_children.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	participants := make([]Participant, len(rows))
	for i, row := range rows {
		participants[i] = Participant{ChildID: row.ChildID, Balance: row.StarCount}
	}
	return participants, nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
