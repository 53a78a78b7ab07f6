package star

// Participant 是分摊计算的输入：一个参与的孩子和它当前的余额。
type Participant struct {
	ChildID uint
	Balance int
}

// Deduction 表示一个孩子要扣掉的星星数。
type Deduction struct {
	ChildID uint `json:"child_id"`
	Amount  int  `json:"amount"`
}

// Plan 计算默认的扣星分摊方案，纯函数，不碰数据库。
//
// 算法：
//  1. base = cost / n（向下取整），按输入顺序给每个孩子试分 base；
//     余额不够 base 的孩子扣光为止（缺口 = base - 余额）。
//  2. 剩下没分完的部分整体给第一个"扣完 base 之后还兜得住"的孩子。
//  3. 谁都兜不住时缺口保留，方案总额会小于 cost，
//     由兑换引擎用 ErrInsufficientTotal 拒绝这种不足额方案。
//
// 任何孩子的扣除额都不会超过它的余额，输出顺序与输入一致。
func Plan(participants []Participant, cost int) ([]Deduction, error) {
	if len(participants) == 0 || cost < 0 {
		return nil, ErrInvalidArgument
	}

	base := cost / len(participants)
	deductions := make([]Deduction, len(participants))
	shortages := make([]int, len(participants))
	remaining := cost

	for i, p := range participants {
		if p.Balance >= base {
			deductions[i] = Deduction{ChildID: p.ChildID, Amount: base}
			remaining -= base
		} else {
			deductions[i] = Deduction{ChildID: p.ChildID, Amount: p.Balance}
			shortages[i] = base - p.Balance
			remaining -= p.Balance
		}
	}

	if remaining > 0 {
		for i, p := range participants {
			if shortages[i] == 0 && p.Balance-deductions[i].Amount >= remaining {
				deductions[i].Amount += remaining
				remaining = 0
				break
			}
		}
	}

	return deductions, nil
}
