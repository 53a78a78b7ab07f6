package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zhy0504/star-savings/internal/models"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportHandler 负责星星流水的导出
type ExportHandler struct {
	DB *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{DB: db}
}

// kindText 流水类型的中文展示
func kindText(kind string) string {
	switch kind {
	case models.KindAdd:
		return "加星"
	case models.KindSubtract:
		return "减星"
	case models.KindRedeem:
		return "兑换"
	}
	return kind
}

// exportRow 是导出的一行数据
type exportRow struct {
	ChildName  string
	Kind       string
	Amount     int
	Reason     string
	RewardName string
	CreatedAt  time.Time
}

func (h *ExportHandler) loadRows() ([]exportRow, error) {
	var records []models.StarRecord
	if err := h.DB.Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}

	// 名字查一次缓存住，避免每行都查库
	childNames := make(map[uint]string)
	rewardNames := make(map[uint]string)

	rows := make([]exportRow, 0, len(records))
	for i := range records {
		r := &records[i]

		childName, ok := childNames[r.ChildID]
		if !ok {
			var child models.Child
			if err := h.DB.First(&child, r.ChildID).Error; err == nil {
				childName = child.Name
			}
			childNames[r.ChildID] = childName
		}

		rewardName := ""
		if r.RewardID != nil {
			rewardName, ok = rewardNames[*r.RewardID]
			if !ok {
				var reward models.Reward
				if err := h.DB.First(&reward, *r.RewardID).Error; err == nil {
					rewardName = reward.Name
				}
				rewardNames[*r.RewardID] = rewardName
			}
		}

		rows = append(rows, exportRow{
			ChildName:  childName,
			Kind:       r.Kind,
			Amount:     r.Amount,
			Reason:     r.Reason,
			RewardName: rewardName,
			CreatedAt:  r.CreatedAt,
		})
	}
	return rows, nil
}

// ExportCSV 导出星星流水为 CSV
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	rows, err := h.loadRows()
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	// 设置响应头
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"star_records_%s.csv\"",
		time.Now().Format("20060102")))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// UTF-8 BOM（让 Excel 正确识别中文）
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	// 写入表头
	writer.Write([]string{"孩子", "类型", "星星数", "理由", "奖励", "时间"})

	// 写入数据
	for _, row := range rows {
		writer.Write([]string{
			row.ChildName,
			kindText(row.Kind),
			strconv.Itoa(row.Amount),
			row.Reason,
			row.RewardName,
			row.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
}

// ExportXLSX 导出星星流水为 XLSX
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	rows, err := h.loadRows()
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询失败")
		return
	}

	f := excelize.NewFile()
	sheetName := "星星流水"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "创建工作表失败")
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// 设置表头
	headers := []string{"孩子", "类型", "星星数", "理由", "奖励", "时间"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	// 写入数据
	for idx, row := range rows {
		line := idx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", line), row.ChildName)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", line), kindText(row.Kind))
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", line), row.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", line), row.Reason)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", line), row.RewardName)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", line), row.CreatedAt.Format("2006-01-02 15:04"))
	}

	// 设置列宽
	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "B", 8)
	f.SetColWidth(sheetName, "C", "C", 8)
	f.SetColWidth(sheetName, "D", "D", 24)
	f.SetColWidth(sheetName, "E", "E", 18)
	f.SetColWidth(sheetName, "F", "F", 18)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"star_records_%s.xlsx\"",
		time.Now().Format("20060102")))

	if err := f.Write(c.Writer); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "导出失败")
	}
}
