package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LogHandler 负责操作日志查询接口
type LogHandler struct {
	DB *gorm.DB
}

func NewLogHandler(db *gorm.DB) *LogHandler {
	return &LogHandler{DB: db}
}

type logResp struct {
	ID        uint      `json:"id"`
	Action    string    `json:"action"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// List 列出操作日志（分页 + 时间 + 关键字）
func (h *LogHandler) List(c *gin.Context) {
	// 分页参数
	pageStr := c.DefaultQuery("page", "1")
	sizeStr := c.DefaultQuery("page_size", "20")
	page, _ := strconv.Atoi(pageStr)
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(sizeStr)
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	// 时间筛选：start / end（格式 YYYY-MM-DD）
	startStr := c.Query("start")
	endStr := c.Query("end")

	var (
		startTime time.Time
		endTime   time.Time
		hasStart  bool
		hasEnd    bool
		err       error
	)

	if startStr != "" {
		startTime, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "开始日期格式错误")
			return
		}
		hasStart = true
	}
	if endStr != "" {
		endTime, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "结束日期格式错误")
			return
		}
		endTime = endTime.Add(24 * time.Hour)
		hasEnd = true
	}

	// 关键字搜索：q（匹配 path / action）
	q := strings.TrimSpace(c.Query("q"))

	base := h.DB.Model(&models.AuditLog{})
	if hasStart {
		base = base.Where("created_at >= ?", startTime)
	}
	if hasEnd {
		base = base.Where("created_at < ?", endTime)
	}
	if q != "" {
		like := "%" + q + "%"
		base = base.Where("path LIKE ? OR action LIKE ?", like, like)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	var logs []models.AuditLog
	if err := base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Limit(size).
		Offset(offset).
		Find(&logs).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	items := make([]logResp, 0, len(logs))
	for _, l := range logs {
		items = append(items, logResp{
			ID:        l.ID,
			Action:    l.Action,
			Path:      l.Path,
			Method:    l.Method,
			IP:        l.IP,
			UserAgent: l.UserAgent,
			Status:    l.Status,
			CreatedAt: l.CreatedAt,
		})
	}

	util.Success(c, util.Response{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
