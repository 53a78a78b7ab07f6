package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/star"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ChildHandler 负责孩子的增删改查
type ChildHandler struct {
	DB        *gorm.DB
	Ledger    *star.Ledger
	UploadDir string
	MaxSizeMB int
}

func NewChildHandler(db *gorm.DB, ledger *star.Ledger, uploadDir string, maxSizeMB int) *ChildHandler {
	return &ChildHandler{
		DB:        db,
		Ledger:    ledger,
		UploadDir: uploadDir,
		MaxSizeMB: maxSizeMB,
	}
}

// ---------- 响应结构 ----------

type childResp struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Birthday  string `json:"birthday"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Avatar    string `json:"avatar"`
	StarCount int    `json:"star_count"`
}

func toChildResp(child *models.Child) childResp {
	return childResp{
		ID:        child.ID,
		Name:      child.Name,
		Birthday:  child.Birthday.Format("2006-01-02"),
		Age:       child.Age(),
		Gender:    child.Gender,
		Avatar:    imageURL(child.Avatar),
		StarCount: child.StarCount,
	}
}

// parseIDParam 解析路径里的 :id
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ID 不合法")
		return 0, false
	}
	return uint(id), true
}

// ---------- 接口 ----------

// List 返回全部孩子，按创建时间倒序
func (h *ChildHandler) List(c *gin.Context) {
	var children []models.Child
	if err := h.DB.Order("created_at DESC").Find(&children).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	items := make([]childResp, 0, len(children))
	for i := range children {
		items = append(items, toChildResp(&children[i]))
	}

	util.Success(c, util.Response{
		"children": items,
	})
}

// Get 返回单个孩子的详情：基本信息 + 最近 20 条流水 + 参与中的奖励
func (h *ChildHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var child models.Child
	if err := h.DB.First(&child, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "孩子不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	records, err := h.Ledger.History(id, 20, 0)
	if err != nil {
		writeStarError(c, err)
		return
	}

	recordItems := make([]gin.H, 0, len(records))
	for i := range records {
		r := &records[i]
		item := gin.H{
			"id":         r.ID,
			"amount":     r.Amount,
			"type":       r.Kind,
			"reason":     r.Reason,
			"reward":     nil,
			"created_at": r.CreatedAt.Format("2006-01-02 15:04"),
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
		recordItems = append(recordItems, item)
	}

	// 参与中的奖励，带参与者余额合计和是否达成
	var links []models.RewardChild
	if err := h.DB.Where("child_id = ?", id).Order("id ASC").Find(&links).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	rewardItems := make([]gin.H, 0, len(links))
	for _, link := range links {
		var reward models.Reward
		if err := h.DB.First(&reward, link.RewardID).Error; err != nil {
			continue
		}
		item, err := rewardSummary(h.DB, &reward)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
			return
		}
		rewardItems = append(rewardItems, item)
	}

	data := util.Response{
		"id":           child.ID,
		"name":         child.Name,
		"birthday":     child.Birthday.Format("2006-01-02"),
		"age":          child.Age(),
		"gender":       child.Gender,
		"avatar":       imageURL(child.Avatar),
		"star_count":   child.StarCount,
		"star_records": recordItems,
		"rewards":      rewardItems,
	}
	util.Success(c, data)
}

// Create 新建孩子，multipart 表单，头像可选
func (h *ChildHandler) Create(c *gin.Context) {
	name := c.PostForm("name")
	birthdayStr := c.PostForm("birthday")
	gender := c.PostForm("gender")

	if name == "" || len(name) > 64 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "请输入孩子的名字")
		return
	}
	if err := util.ValidateDate(birthdayStr); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "生日格式错误，应为 YYYY-MM-DD")
		return
	}
	if err := util.ValidateGender(gender); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "性别只能是 male 或 female")
		return
	}

	birthday, _ := time.Parse("2006-01-02", birthdayStr)

	child := models.Child{
		Name:     name,
		Birthday: birthday,
		Gender:   gender,
	}

	if file, err := c.FormFile("avatar"); err == nil {
		stored, err := saveUploadedImage(c, file, h.UploadDir, h.MaxSizeMB)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "头像上传失败："+err.Error())
			return
		}
		child.Avatar = stored
	}

	if err := h.DB.Create(&child).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "保存失败，请重试")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code": util.CodeOK,
		"data": toChildResp(&child),
	})
}

// Update 修改孩子资料。星星余额不在这里改，必须走加减星接口
func (h *ChildHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var child models.Child
	if err := h.DB.First(&child, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "孩子不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	if name := c.PostForm("name"); name != "" {
		if len(name) > 64 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "名字太长")
			return
		}
		child.Name = name
	}
	if birthdayStr := c.PostForm("birthday"); birthdayStr != "" {
		if err := util.ValidateDate(birthdayStr); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "生日格式错误，应为 YYYY-MM-DD")
			return
		}
		child.Birthday, _ = time.Parse("2006-01-02", birthdayStr)
	}
	if gender := c.PostForm("gender"); gender != "" {
		if err := util.ValidateGender(gender); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "性别只能是 male 或 female")
			return
		}
		child.Gender = gender
	}

	if file, err := c.FormFile("avatar"); err == nil {
		stored, err := saveUploadedImage(c, file, h.UploadDir, h.MaxSizeMB)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "头像上传失败："+err.Error())
			return
		}
		removeUploadedImage(h.UploadDir, child.Avatar)
		child.Avatar = stored
	}

	// Select 限定可改字段，防止把 star_count 一起写回去
	if err := h.DB.Model(&child).
		Select("name", "birthday", "gender", "avatar").
		Updates(&child).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "保存失败，请重试")
		return
	}

	util.Success(c, util.Response{
		"child": toChildResp(&child),
	})
}

// Delete 删除孩子及其头像，流水由外键级联清理
func (h *ChildHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var child models.Child
	if err := h.DB.First(&child, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "孩子不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	if err := h.DB.Delete(&child).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "删除失败")
		return
	}
	removeUploadedImage(h.UploadDir, child.Avatar)

	util.Success(c, util.Response{
		"message": "删除成功",
	})
}
