package util

import (
	"fmt"
	"time"
)

// ValidateStarAmount 验证星星数量（必须为正数且不超过上限，max<=0 表示不限）
func ValidateStarAmount(amount, max int) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	if max > 0 && amount > max {
		return fmt.Errorf("amount exceeds limit %d, got %d", max, amount)
	}
	return nil
}

// ValidateDate 验证日期格式（必须为 YYYY-MM-DD）
func ValidateDate(dateStr string) error {
	if dateStr == "" {
		return fmt.Errorf("date is empty")
	}
	_, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	return nil
}

// ValidateGender 验证性别取值
func ValidateGender(gender string) error {
	if gender != "male" && gender != "female" {
		return fmt.Errorf("gender must be male or female, got %q", gender)
	}
	return nil
}
