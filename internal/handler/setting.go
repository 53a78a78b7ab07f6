package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SettingHandler 负责全局设置的读写
type SettingHandler struct {
	DB *gorm.DB
}

func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{DB: db}
}

// castSettingValue 按类型还原设置值：integer 转数字，json 反序列化，其余原样
func castSettingValue(s *models.Setting) interface{} {
	switch s.Type {
	case "integer":
		if n, err := strconv.Atoi(s.Value); err == nil {
			return n
		}
	case "json":
		var v interface{}
		if err := json.Unmarshal([]byte(s.Value), &v); err == nil {
			return v
		}
	}
	return s.Value
}

// List 返回全部设置
func (h *SettingHandler) List(c *gin.Context) {
	var settings []models.Setting
	if err := h.DB.Order("key ASC").Find(&settings).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	items := make([]gin.H, 0, len(settings))
	for i := range settings {
		s := &settings[i]
		items = append(items, gin.H{
			"key":         s.Key,
			"value":       castSettingValue(s),
			"type":        s.Type,
			"description": s.Description,
		})
	}

	util.Success(c, util.Response{
		"settings": items,
	})
}

// Get 按 key 返回单个设置
func (h *SettingHandler) Get(c *gin.Context) {
	key := c.Param("key")

	s, err := models.GetSetting(h.DB, key)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "设置项不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	util.Success(c, util.Response{
		"key":   s.Key,
		"value": castSettingValue(s),
	})
}

type updateSettingReq struct {
	Value string `json:"value" binding:"required"`
}

// Update 修改设置值。只能改已存在的 key，类型跟随原设置
func (h *SettingHandler) Update(c *gin.Context) {
	key := c.Param("key")

	var req updateSettingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	existing, err := models.GetSetting(h.DB, key)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "设置项不存在")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		}
		return
	}

	// integer 类型必须是正整数
	if existing.Type == "integer" {
		n, err := strconv.Atoi(req.Value)
		if err != nil || n < 1 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "设置值必须为正整数")
			return
		}
	}
	// json 类型必须能解析
	if existing.Type == "json" {
		var v interface{}
		if err := json.Unmarshal([]byte(req.Value), &v); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "设置值不是合法的 JSON")
			return
		}
	}

	if err := models.SetSetting(h.DB, key, req.Value, existing.Type, existing.Description); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "保存失败，请重试")
		return
	}

	s, _ := models.GetSetting(h.DB, key)
	util.Success(c, util.Response{
		"key":   key,
		"value": castSettingValue(s),
	})
}
