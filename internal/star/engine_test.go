package star

import (
	"errors"
	"sync"
	"testing"

	"github.com/zhy0504/star-savings/internal/models"

	"gorm.io/gorm"
)

func redeemRecordCount(t *testing.T, db *gorm.DB, rewardID uint) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&models.StarRecord{}).
		Where("kind = ? AND reward_id = ?", models.KindRedeem, rewardID).
		Count(&count).Error; err != nil {
		t.Fatalf("count redeem records: %v", err)
	}
	return count
}

func loadLinks(t *testing.T, db *gorm.DB, rewardID uint) map[uint]*int {
	t.Helper()

	var links []models.RewardChild
	if err := db.Where("reward_id = ?", rewardID).Find(&links).Error; err != nil {
		t.Fatalf("load reward links: %v", err)
	}
	result := make(map[uint]*int, len(links))
	for _, link := range links {
		result[link.ChildID] = link.DeductionAmount
	}
	return result
}

// ==================== Redeem ====================

// TestRedeem_Success 测试正常兑换：流水、余额、扣除额、奖励状态一次到位
func TestRedeem_Success(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 10)
	b := createChild(t, db, "小月", 10)
	reward := createReward(t, db, "乐高", 15, a.ID, b.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 8},
		{ChildID: b.ID, Amount: 7},
	})
	if err != nil {
		t.Fatalf("Redeem error = %v, want nil", err)
	}

	// 余额扣掉了
	if balance, _ := ledger.BalanceOf(a.ID); balance != 2 {
		t.Errorf("balance(a) = %d, want 2", balance)
	}
	if balance, _ := ledger.BalanceOf(b.ID); balance != 3 {
		t.Errorf("balance(b) = %d, want 3", balance)
	}

	// 每个出星星的孩子一条 redeem 流水，金额为负
	if n := redeemRecordCount(t, db, reward.ID); n != 2 {
		t.Errorf("redeem record count = %d, want 2", n)
	}
	var record models.StarRecord
	if err := db.Where("child_id = ? AND kind = ?", a.ID, models.KindRedeem).First(&record).Error; err != nil {
		t.Fatalf("load redeem record: %v", err)
	}
	if record.Amount != -8 {
		t.Errorf("record amount = %d, want -8", record.Amount)
	}
	if record.RewardID == nil || *record.RewardID != reward.ID {
		t.Errorf("record reward_id = %v, want %d", record.RewardID, reward.ID)
	}

	// 奖励进入终态
	var got models.Reward
	if err := db.First(&got, reward.ID).Error; err != nil {
		t.Fatalf("load reward: %v", err)
	}
	if !got.IsRedeemed {
		t.Error("reward.IsRedeemed = false, want true")
	}
	if got.RedeemedAt == nil {
		t.Error("reward.RedeemedAt = nil, want timestamp")
	}

	// 扣除额记在关联表上
	links := loadLinks(t, db, reward.ID)
	if links[a.ID] == nil || *links[a.ID] != 8 {
		t.Errorf("deduction_amount(a) = %v, want 8", links[a.ID])
	}
	if links[b.ID] == nil || *links[b.ID] != 7 {
		t.Errorf("deduction_amount(b) = %v, want 7", links[b.ID])
	}
}

// TestRedeem_ZeroAmountParticipant 没出力的参与者不产生流水，但扣除额记 0 而不是 NULL
func TestRedeem_ZeroAmountParticipant(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	b := createChild(t, db, "小月", 0)
	reward := createReward(t, db, "绘本", 10, a.ID, b.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 10},
		{ChildID: b.ID, Amount: 0},
	})
	if err != nil {
		t.Fatalf("Redeem error = %v, want nil", err)
	}

	if n := redeemRecordCount(t, db, reward.ID); n != 1 {
		t.Errorf("redeem record count = %d, want 1 (zero deduction has no record)", n)
	}

	links := loadLinks(t, db, reward.ID)
	if links[b.ID] == nil {
		t.Fatal("deduction_amount(b) = NULL, want 0")
	}
	if *links[b.ID] != 0 {
		t.Errorf("deduction_amount(b) = %d, want 0", *links[b.ID])
	}
}

// TestRedeem_OmittedParticipant 方案里没提到的参与者按 0 处理
func TestRedeem_OmittedParticipant(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	b := createChild(t, db, "小月", 5)
	reward := createReward(t, db, "风筝", 10, a.ID, b.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 10},
	})
	if err != nil {
		t.Fatalf("Redeem error = %v, want nil", err)
	}

	links := loadLinks(t, db, reward.ID)
	if links[b.ID] == nil || *links[b.ID] != 0 {
		t.Errorf("deduction_amount(b) = %v, want 0", links[b.ID])
	}
}

// TestRedeem_RewardNotFound 测试兑换不存在的奖励
func TestRedeem_RewardNotFound(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	err := engine.Redeem(9999, []Deduction{{ChildID: 1, Amount: 1}})
	if !errors.Is(err, ErrRewardNotFound) {
		t.Errorf("Redeem error = %v, want ErrRewardNotFound", err)
	}
}

// TestRedeem_AlreadyRedeemed 重复兑换：第二次必须拒绝且不再产生流水
func TestRedeem_AlreadyRedeemed(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	reward := createReward(t, db, "游乐园", 10, a.ID)

	deductions := []Deduction{{ChildID: a.ID, Amount: 10}}
	if err := engine.Redeem(reward.ID, deductions); err != nil {
		t.Fatalf("first Redeem error = %v, want nil", err)
	}

	before := redeemRecordCount(t, db, reward.ID)

	err := engine.Redeem(reward.ID, deductions)
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Errorf("second Redeem error = %v, want ErrAlreadyRedeemed", err)
	}

	// 再兑换一次也一样被拒绝
	err = engine.Redeem(reward.ID, deductions)
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Errorf("third Redeem error = %v, want ErrAlreadyRedeemed", err)
	}

	if after := redeemRecordCount(t, db, reward.ID); after != before {
		t.Errorf("redeem record count changed: %d -> %d", before, after)
	}
}

// TestRedeem_InsufficientTotal 方案总额不够时拒绝且零副作用
func TestRedeem_InsufficientTotal(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	b := createChild(t, db, "小月", 20)
	reward := createReward(t, db, "自行车", 30, a.ID, b.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 10},
		{ChildID: b.ID, Amount: 10},
	})
	if !errors.Is(err, ErrInsufficientTotal) {
		t.Fatalf("Redeem error = %v, want ErrInsufficientTotal", err)
	}

	// 零副作用
	if balance, _ := ledger.BalanceOf(a.ID); balance != 20 {
		t.Errorf("balance(a) = %d, want 20 (unchanged)", balance)
	}
	if n := redeemRecordCount(t, db, reward.ID); n != 0 {
		t.Errorf("redeem record count = %d, want 0", n)
	}
	var got models.Reward
	db.First(&got, reward.ID)
	if got.IsRedeemed {
		t.Error("reward.IsRedeemed = true, want false")
	}
	links := loadLinks(t, db, reward.ID)
	if links[a.ID] != nil || links[b.ID] != nil {
		t.Error("deduction_amount written on failed redeem, want NULL")
	}
}

// TestRedeem_InsufficientBalance 某个孩子不够扣时报错要指名道姓，且零副作用
func TestRedeem_InsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	b := createChild(t, db, "小月", 3)
	reward := createReward(t, db, "滑板", 15, a.ID, b.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 10},
		{ChildID: b.ID, Amount: 5},
	})

	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Redeem error = %v, want *InsufficientBalanceError", err)
	}
	if insufficient.ChildID != b.ID {
		t.Errorf("error names child %d, want %d", insufficient.ChildID, b.ID)
	}
	if insufficient.Name != "小月" {
		t.Errorf("error names %q, want 小月", insufficient.Name)
	}

	if balance, _ := ledger.BalanceOf(a.ID); balance != 20 {
		t.Errorf("balance(a) = %d, want 20 (unchanged)", balance)
	}
	if balance, _ := ledger.BalanceOf(b.ID); balance != 3 {
		t.Errorf("balance(b) = %d, want 3 (unchanged)", balance)
	}
	if n := redeemRecordCount(t, db, reward.ID); n != 0 {
		t.Errorf("redeem record count = %d, want 0", n)
	}
}

// TestRedeem_InvalidParticipant 扣到了没参与奖励的孩子头上（异常）
func TestRedeem_InvalidParticipant(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	outsider := createChild(t, db, "隔壁小孩", 20)
	reward := createReward(t, db, "拼图", 10, a.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 5},
		{ChildID: outsider.ID, Amount: 5},
	})
	if !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("Redeem error = %v, want ErrInvalidParticipant", err)
	}

	if n := redeemRecordCount(t, db, reward.ID); n != 0 {
		t.Errorf("redeem record count = %d, want 0", n)
	}
	var got models.Reward
	db.First(&got, reward.ID)
	if got.IsRedeemed {
		t.Error("reward.IsRedeemed = true, want false")
	}
}

// TestRedeem_UnknownChildInPlan 方案里有不存在的孩子（异常）
func TestRedeem_UnknownChildInPlan(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	reward := createReward(t, db, "故事机", 10, a.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 5},
		{ChildID: 9999, Amount: 5},
	})
	if !errors.Is(err, ErrChildNotFound) {
		t.Errorf("Redeem error = %v, want ErrChildNotFound", err)
	}
}

// TestRedeem_NegativeAmount 负数扣除额（异常）
func TestRedeem_NegativeAmount(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	reward := createReward(t, db, "魔方", 5, a.ID)

	err := engine.Redeem(reward.ID, []Deduction{{ChildID: a.ID, Amount: -5}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Redeem error = %v, want ErrInvalidArgument", err)
	}
}

// TestRedeem_DuplicateChild 同一个孩子出现两次（异常）
func TestRedeem_DuplicateChild(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	reward := createReward(t, db, "积木", 10, a.ID)

	err := engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 5},
		{ChildID: a.ID, Amount: 5},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Redeem error = %v, want ErrInvalidArgument", err)
	}
}

// TestRedeem_Concurrent 并发兑换同一个奖励：只许成功一次
func TestRedeem_Concurrent(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 50)
	reward := createReward(t, db, "望远镜", 10, a.ID)

	deductions := []Deduction{{ChildID: a.ID, Amount: 10}}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Redeem(reward.ID, deductions)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	rejected := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyRedeemed):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Errorf("succeeded = %d, rejected = %d, want exactly 1 and 1", succeeded, rejected)
	}

	// 流水只来自成功的那一次
	if n := redeemRecordCount(t, db, reward.ID); n != 1 {
		t.Errorf("redeem record count = %d, want 1", n)
	}
	ledger := NewLedger(db)
	if balance, _ := ledger.BalanceOf(a.ID); balance != 40 {
		t.Errorf("balance = %d, want 40 (deducted once)", balance)
	}
}

// TestRedeem_FaultMidApply 落账写到一半出错必须整体回滚：
// 第一条流水已经落了、余额也扣了，第二条流水写入时注入存储错误
func TestRedeem_FaultMidApply(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 10)
	b := createChild(t, db, "小月", 10)
	reward := createReward(t, db, "帐篷", 15, a.ID, b.ID)

	boom := errors.New("disk I/O error")
	inserted := 0
	err := db.Callback().Create().Before("gorm:create").Register("inject_write_fault", func(d *gorm.DB) {
		if d.Statement.Schema == nil || d.Statement.Schema.Table != "star_records" {
			return
		}
		inserted++
		if inserted == 2 {
			d.AddError(boom)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	err = engine.Redeem(reward.ID, []Deduction{
		{ChildID: a.ID, Amount: 8},
		{ChildID: b.ID, Amount: 7},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Redeem error = %v, want injected fault", err)
	}
	if inserted != 2 {
		t.Fatalf("star_records inserts = %d, want 2 (fault fired mid-apply)", inserted)
	}

	// 半程写入全部回滚
	if n := redeemRecordCount(t, db, reward.ID); n != 0 {
		t.Errorf("redeem record count = %d, want 0", n)
	}
	if balance, _ := ledger.BalanceOf(a.ID); balance != 10 {
		t.Errorf("balance(a) = %d, want 10 (rolled back)", balance)
	}
	if balance, _ := ledger.BalanceOf(b.ID); balance != 10 {
		t.Errorf("balance(b) = %d, want 10 (rolled back)", balance)
	}

	var got models.Reward
	if err := db.First(&got, reward.ID).Error; err != nil {
		t.Fatalf("load reward: %v", err)
	}
	if got.IsRedeemed {
		t.Error("reward.IsRedeemed = true, want false")
	}
	if got.RedeemedAt != nil {
		t.Errorf("reward.RedeemedAt = %v, want nil", got.RedeemedAt)
	}
	links := loadLinks(t, db, reward.ID)
	if links[a.ID] != nil || links[b.ID] != nil {
		t.Error("deduction_amount written on failed redeem, want NULL")
	}
}

// ==================== DefaultPlan ====================

// TestDefaultPlan_UsesLiveBalances 默认方案按实时余额计算，参与顺序稳定
func TestDefaultPlan_UsesLiveBalances(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 10)
	b := createChild(t, db, "小月", 2)
	c := createChild(t, db, "小阳", 10)
	reward := createReward(t, db, "野餐", 15, a.ID, b.ID, c.ID)

	plan, err := engine.DefaultPlan(reward.ID)
	if err != nil {
		t.Fatalf("DefaultPlan error = %v, want nil", err)
	}

	wantIDs := []uint{a.ID, b.ID, c.ID}
	wantAmounts := []int{8, 2, 5}
	if len(plan) != 3 {
		t.Fatalf("len(plan) = %d, want 3", len(plan))
	}
	for i, d := range plan {
		if d.ChildID != wantIDs[i] {
			t.Errorf("plan[%d].ChildID = %d, want %d", i, d.ChildID, wantIDs[i])
		}
		if d.Amount != wantAmounts[i] {
			t.Errorf("plan[%d].Amount = %d, want %d", i, d.Amount, wantAmounts[i])
		}
	}
}

// TestDefaultPlan_UnderCoveringRejectedOnRedeem 凑不够的默认方案原样提交会被拒绝
func TestDefaultPlan_UnderCoveringRejectedOnRedeem(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 1)
	b := createChild(t, db, "小月", 1)
	reward := createReward(t, db, "灯塔积木", 10, a.ID, b.ID)

	plan, err := engine.DefaultPlan(reward.ID)
	if err != nil {
		t.Fatalf("DefaultPlan error = %v, want nil", err)
	}
	if total := planTotal(plan); total != 2 {
		t.Fatalf("plan total = %d, want 2", total)
	}

	err = engine.Redeem(reward.ID, plan)
	if !errors.Is(err, ErrInsufficientTotal) {
		t.Errorf("Redeem(under-covering plan) error = %v, want ErrInsufficientTotal", err)
	}
}

// TestDefaultPlan_RewardNotFound 测试奖励不存在
func TestDefaultPlan_RewardNotFound(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	_, err := engine.DefaultPlan(9999)
	if !errors.Is(err, ErrRewardNotFound) {
		t.Errorf("DefaultPlan error = %v, want ErrRewardNotFound", err)
	}
}

// TestDefaultPlan_AlreadyRedeemed 已兑换的奖励不再给方案
func TestDefaultPlan_AlreadyRedeemed(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	a := createChild(t, db, "小星", 20)
	reward := createReward(t, db, "溜冰鞋", 10, a.ID)

	if err := engine.Redeem(reward.ID, []Deduction{{ChildID: a.ID, Amount: 10}}); err != nil {
		t.Fatalf("Redeem error = %v", err)
	}

	_, err := engine.DefaultPlan(reward.ID)
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Errorf("DefaultPlan error = %v, want ErrAlreadyRedeemed", err)
	}
}
