package handler

import (
	"net/http"
	"strconv"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/star"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StarHandler 负责加星、减星和流水查询
type StarHandler struct {
	DB     *gorm.DB
	Ledger *star.Ledger
}

func NewStarHandler(db *gorm.DB, ledger *star.Ledger) *StarHandler {
	return &StarHandler{DB: db, Ledger: ledger}
}

type starOpReq struct {
	Amount int    `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"max=255"`
}

// Add 给孩子加星星，单次上限由 max_stars_per_add 设置控制
func (h *StarHandler) Add(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req starOpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	// 上限是外部设置，每次调用时现读，改了立刻生效
	maxStars := models.GetSettingInt(h.DB, "max_stars_per_add", 100)
	if err := util.ValidateStarAmount(req.Amount, maxStars); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "星星数量必须在 1 到 "+strconv.Itoa(maxStars)+" 之间")
		return
	}

	record, err := h.Ledger.AddStars(id, req.Amount, req.Reason)
	if err != nil {
		writeStarError(c, err)
		return
	}

	balance, err := h.Ledger.BalanceOf(id)
	if err != nil {
		writeStarError(c, err)
		return
	}

	util.Success(c, util.Response{
		"record_id":  record.ID,
		"star_count": balance,
	})
}

// Subtract 给孩子减星星，余额不够时整笔拒绝
func (h *StarHandler) Subtract(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req starOpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}
	if err := util.ValidateStarAmount(req.Amount, 0); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "星星数量必须为正数")
		return
	}

	record, err := h.Ledger.SubtractStars(id, req.Amount, req.Reason)
	if err != nil {
		writeStarError(c, err)
		return
	}

	balance, err := h.Ledger.BalanceOf(id)
	if err != nil {
		writeStarError(c, err)
		return
	}

	util.Success(c, util.Response{
		"record_id":  record.ID,
		"star_count": balance,
	})
}

// History 返回单个孩子的流水，倒序，limit/offset 翻页
func (h *StarHandler) History(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.Ledger.History(id, limit, offset)
	if err != nil {
		writeStarError(c, err)
		return
	}

	items := make([]gin.H, 0, len(records))
	for i := range records {
		r := &records[i]
		items = append(items, gin.H{
			"id":         r.ID,
			"amount":     r.Amount,
			"type":       r.Kind,
			"reason":     r.Reason,
			"reward_id":  r.RewardID,
			"created_at": r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	util.Success(c, util.Response{
		"records": items,
		"limit":   limit,
		"offset":  offset,
	})
}

// Recent 返回最近的流水（所有孩子），首页用
func (h *StarHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var records []models.StarRecord
	if err := h.DB.Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for i := range records {
		r := &records[i]
		item := gin.H{
			"id":         r.ID,
			"amount":     r.Amount,
			"type":       r.Kind,
			"reason":     r.Reason,
			"child":      nil,
			"reward":     nil,
			"created_at": r.CreatedAt.Format("2006-01-02 15:04"),
		}

		var child models.Child
		if err := h.DB.First(&child, r.ChildID).Error; err == nil {
			item["child"] = gin.H{
				"id":     child.ID,
				"name":   child.Name,
				"gender": child.Gender,
				"avatar": imageURL(child.Avatar),
			}
		}
		if r.RewardID != nil {
			var reward models.Reward
			if err := h.DB.First(&reward, *r.RewardID).Error; err == nil {
				item["reward"] = gin.H{
					"id":    reward.ID,
					"name":  reward.Name,
					"image": imageURL(reward.Image),
				}
			}
		}
		items = append(items, item)
	}

	util.Success(c, util.Response{
		"records": items,
	})
}
