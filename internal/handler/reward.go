package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/star"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RewardHandler 负责奖励的增删改查和兑换
type RewardHandler struct {
	DB        *gorm.DB
	Engine    *star.Engine
	UploadDir string
	MaxSizeMB int
}

func NewRewardHandler(db *gorm.DB, engine *star.Engine, uploadDir string, maxSizeMB int) *RewardHandler {
	return &RewardHandler{
		DB:        db,
		Engine:    engine,
		UploadDir: uploadDir,
		MaxSizeMB: maxSizeMB,
	}
}

// rewardSummary 组装奖励详情：参与者、余额合计、是否达成
func rewardSummary(db *gorm.DB, reward *models.Reward) (gin.H, error) {
	var links []models.RewardChild
	if err := db.Where("reward_id = ?", reward.ID).Order("id ASC").Find(&links).Error; err != nil {
		return nil, err
	}

	totalStars := 0
	childItems := make([]gin.H, 0, len(links))
	for _, link := range links {
		var child models.Child
		if err := db.First(&child, link.ChildID).Error; err != nil {
			continue
		}
		totalStars += child.StarCount
		childItems = append(childItems, gin.H{
			"id":               child.ID,
			"name":             child.Name,
			"gender":           child.Gender,
			"star_count":       child.StarCount,
			"avatar":           imageURL(child.Avatar),
			"deduction_amount": link.DeductionAmount,
		})
	}

	var redeemedAt interface{}
	if reward.RedeemedAt != nil {
		redeemedAt = reward.RedeemedAt.Format("2006-01-02 15:04")
	}

	return gin.H{
		"id":          reward.ID,
		"name":        reward.Name,
		"image":       imageURL(reward.Image),
		"star_cost":   reward.StarCost,
		"is_redeemed": reward.IsRedeemed,
		"redeemed_at": redeemedAt,
		"children":    childItems,
		"total_stars": totalStars,
		"is_achieved": totalStars >= reward.StarCost,
	}, nil
}

// parseChildIDs 解析表单里的参与孩子列表，兼容 child_ids 和 child_ids[] 两种写法
func parseChildIDs(c *gin.Context) []uint {
	values := c.PostFormArray("child_ids[]")
	if len(values) == 0 {
		values = c.PostFormArray("child_ids")
	}

	ids := make([]uint, 0, len(values))
	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil
		}
		ids = append(ids, uint(n))
	}
	return ids
}

// ---------- 接口 ----------

// List 返回全部奖励及进度
func (h *RewardHandler) List(c *gin.Context) {
	var rewards []models.Reward
	if err := h.DB.Order("created_at DESC").Find(&rewards).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	items := make([]gin.H, 0, len(rewards))
	for i := range rewards {
		item, err := rewardSummary(h.DB, &rewards[i])
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
			return
		}
		items = append(items, item)
	}

	util.Success(c, util.Response{
		"rewards": items,
	})
}

// Create 新建奖励，multipart 表单：name、star_cost、child_ids[]、image（可选）
func (h *RewardHandler) Create(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" || len(name) > 255 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请输入奖励名称")
		return
	}

	starCost, err := strconv.Atoi(c.PostForm("star_cost"))
	if err != nil || starCost < 1 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "所需星星数必须为正整数")
		return
	}

	childIDs := parseChildIDs(c)
	if len(childIDs) == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请至少选择一个参与的孩子")
		return
	}

	// 参与者必须都存在
	var count int64
	if err := h.DB.Model(&models.Child{}).Where("id IN ?", childIDs).Count(&count).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}
	if int(count) != len(childIDs) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参与名单里有不存在的孩子")
		return
	}

	reward := models.Reward{
		Name:     name,
		StarCost: starCost,
	}

	if file, err := c.FormFile("image"); err == nil {
		stored, err := saveUploadedImage(c, file, h.UploadDir, h.MaxSizeMB)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "图片上传失败："+err.Error())
			return
		}
		reward.Image = stored
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reward).Error; err != nil {
			return err
		}
		for _, childID := range childIDs {
			link := models.RewardChild{RewardID: reward.ID, ChildID: childID}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "保存失败，请重试")
		return
	}

	item, err := rewardSummary(h.DB, &reward)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code": util.CodeOK,
		"data": item,
	})
}

// Update 修改奖励。已兑换的奖励是终态，不允许再改星星数和参与名单
func (h *RewardHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var reward models.Reward
	if err := h.DB.First(&reward, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "奖励不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	costStr := c.PostForm("star_cost")
	childIDs := parseChildIDs(c)

	if reward.IsRedeemed && (costStr != "" || len(childIDs) > 0) {
		util.Error(c, http.StatusBadRequest, util.CodeConflict, "奖励已兑换，不能再修改星星数或参与名单")
		return
	}

	if name := c.PostForm("name"); name != "" {
		if len(name) > 255 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "名称太长")
			return
		}
		reward.Name = name
	}
	if costStr != "" {
		starCost, err := strconv.Atoi(costStr)
		if err != nil || starCost < 1 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "所需星星数必须为正整数")
			return
		}
		reward.StarCost = starCost
	}

	if file, err := c.FormFile("image"); err == nil {
		stored, err := saveUploadedImage(c, file, h.UploadDir, h.MaxSizeMB)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "图片上传失败："+err.Error())
			return
		}
		removeUploadedImage(h.UploadDir, reward.Image)
		reward.Image = stored
	}

	if len(childIDs) > 0 {
		var count int64
		if err := h.DB.Model(&models.Child{}).Where("id IN ?", childIDs).Count(&count).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
			return
		}
		if int(count) != len(childIDs) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参与名单里有不存在的孩子")
			return
		}
	}

	touchesLocked := costStr != "" || len(childIDs) > 0

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		// 前面的终态检查读在事务外，可能和并发兑换交错。
		// 改星星数或名单时把条件带进 UPDATE 里，在事务内重新分胜负：
		// 兑换先提交的话这里影响 0 行，直接放弃，已定格的扣除额不会被覆盖。
		update := tx.Model(&models.Reward{}).Where("id = ?", reward.ID)
		if touchesLocked {
			update = update.Where("is_redeemed = ?", false)
		}
		res := update.Select("name", "star_cost", "image").Updates(&reward)
		if res.Error != nil {
			return res.Error
		}
		if touchesLocked && res.RowsAffected == 0 {
			return star.ErrAlreadyRedeemed
		}
		if len(childIDs) > 0 {
			// 全量替换参与名单
			if err := tx.Where("reward_id = ?", reward.ID).Delete(&models.RewardChild{}).Error; err != nil {
				return err
			}
			for _, childID := range childIDs {
				link := models.RewardChild{RewardID: reward.ID, ChildID: childID}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, star.ErrAlreadyRedeemed) {
			util.Error(c, http.StatusBadRequest, util.CodeConflict, "奖励已兑换，不能再修改星星数或参与名单")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "保存失败，请重试")
		return
	}

	item, err := rewardSummary(h.DB, &reward)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}
	util.Success(c, util.Response(item))
}

// Delete 删除奖励，关联记录级联清理，已产生的兑换流水保留
func (h *RewardHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var reward models.Reward
	if err := h.DB.First(&reward, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "奖励不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	if err := h.DB.Delete(&reward).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "删除失败")
		return
	}
	removeUploadedImage(h.UploadDir, reward.Image)

	util.Success(c, util.Response{
		"message": "删除成功",
	})
}

// ---------- 兑换 ----------

type redeemReq struct {
	Deductions []star.Deduction `json:"deductions" binding:"required"`
}

// Redeem 兑换奖励，body 里是每个孩子的扣星方案
func (h *RewardHandler) Redeem(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req redeemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	if err := h.Engine.Redeem(id, req.Deductions); err != nil {
		writeStarError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "兑换成功",
	})
}

// DefaultDeductions 返回默认的扣星分摊方案，前端填表用
func (h *RewardHandler) DefaultDeductions(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	plan, err := h.Engine.DefaultPlan(id)
	if err != nil {
		writeStarError(c, err)
		return
	}

	var reward models.Reward
	if err := h.DB.First(&reward, id).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	total := 0
	for _, d := range plan {
		total += d.Amount
	}

	util.Success(c, util.Response{
		"deductions": plan,
		"total":      total,
		// 方案可能凑不够 star_cost（谁都兜不住剩余缺口时），前端要提示家长手动调整
		"is_sufficient": total >= reward.StarCost,
	})
}
