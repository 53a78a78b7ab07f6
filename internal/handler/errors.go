package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zhy0504/star-savings/internal/star"
	"github.com/zhy0504/star-savings/internal/util"

	"github.com/gin-gonic/gin"
)

// writeStarError 把 star 包的领域错误映射成统一响应
func writeStarError(c *gin.Context, err error) {
	var insufficient *star.InsufficientBalanceError
	switch {
	case errors.Is(err, star.ErrChildNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "孩子不存在")
	case errors.Is(err, star.ErrRewardNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "奖励不存在")
	case errors.Is(err, star.ErrAlreadyRedeemed):
		util.Error(c, http.StatusBadRequest, util.CodeConflict, "奖励已经兑换过了")
	case errors.Is(err, star.ErrInsufficientTotal):
		util.Error(c, http.StatusBadRequest, util.CodeConflict, "扣除的星星总数不够兑换这个奖励")
	case errors.As(err, &insufficient):
		util.Error(c, http.StatusBadRequest, util.CodeConflict,
			fmt.Sprintf("%s 的星星不够扣（只有 %d 颗，要扣 %d 颗）",
				insufficient.Name, insufficient.Balance, insufficient.Requested))
	case errors.Is(err, star.ErrInvalidParticipant):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "扣星名单里有未参与这个奖励的孩子")
	case errors.Is(err, star.ErrInvalidArgument):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "操作失败，请重试")
	}
}
