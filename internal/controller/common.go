package controller

import (
	"studybuddy_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// pathID 解析路径中的正整数 ID，失败时直接写 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}

// currentUser 受保护路由上 AuthMiddleware 已保证存在
func currentUser(ctx *gin.Context) (uint, bool) {
	id := util.CurrentUserID(ctx)
	if id == 0 {
		util.Unauthorized(ctx)
		return 0, false
	}
	return id, true
}

// OrderRequest 按给定顺序重排，位置从 1 开始
type OrderRequest struct {
	Order []uint `json:"order" binding:"required"`
}
