package star

import (
	"errors"
	"fmt"
)

// 领域错误全部用哨兵值加少量结构体表达，
// 上层 handler 用 errors.Is / errors.As 判断后映射成 HTTP 状态码。
var (
	// ErrChildNotFound 表示引用的孩子不存在
	ErrChildNotFound = errors.New("child not found")

	// ErrRewardNotFound 表示引用的奖励不存在
	ErrRewardNotFound = errors.New("reward not found")

	// ErrAlreadyRedeemed 表示奖励已经兑换过，处于终态
	ErrAlreadyRedeemed = errors.New("reward already redeemed")

	// ErrInsufficientTotal 表示扣星方案的总和小于奖励所需星星数
	ErrInsufficientTotal = errors.New("total deduction is less than reward cost")

	// ErrInvalidParticipant 表示方案里出现了不在奖励参与名单中的孩子
	ErrInvalidParticipant = errors.New("deduction references a non-participant child")

	// ErrInvalidArgument 表示参数本身不合法（零参与者、负数金额等）
	ErrInvalidArgument = errors.New("invalid argument")
)

// InsufficientBalanceError 表示某个孩子的星星不够扣，会指明是谁
type InsufficientBalanceError struct {
	ChildID   uint
	Name      string
	Balance   int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("child %q (id=%d) has %d stars, cannot deduct %d",
		e.Name, e.ChildID, e.Balance, e.Requested)
}
