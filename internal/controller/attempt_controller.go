package controller

import (
	"studybuddy_backend/internal/service"
	"studybuddy_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// @Summary 开始或继续答题
// @Description 已有进行中的答题时直接返回（200），否则新建（201）
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Success 201 {object} util.Response{data=model.Attempt}
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response "答题次数已用完"
// @Router /api/quizzes/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, created, err := c.AttemptService.StartOrResume(ctx.Request.Context(), userID, quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if created {
		util.Created(ctx, attempt)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 测验的答题记录与统计
// @Description 作者看到全部答题，其他用户只看到自己的
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.AttemptList}
// @Router /api/quizzes/{id}/attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	list, err := c.AttemptService.ListAttempts(ctx.Request.Context(), userID, quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 答题详情
// @Description 进行中时不返回正确答案与得分
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.AttemptService.GetAttempt(ctx.Request.Context(), userID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 作答一道题
// @Description 同一题重复提交会覆盖之前的作答
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Param body body service.AnswerInput true "作答"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "答题已结束"
// @Failure 422 {object} util.Response "作答不合法"
// @Router /api/attempts/{id}/answers [put]
func (c *AttemptController) RecordAnswer(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in service.AnswerInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if in.QuestionID == 0 {
		util.BadRequest(ctx, "questionId is required")
		return
	}

	_, attempt, err := c.AttemptService.RecordAnswer(ctx.Request.Context(), userID, attemptID, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	// 进行中不回传正确性与得分
	util.Success(ctx, gin.H{
		"attemptId":  attempt.ID,
		"questionId": in.QuestionID,
		"saved":      true,
	})
}

// @Summary 清除一道题的作答
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId} [delete]
func (c *AttemptController) ClearAnswer(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}

	if _, err := c.AttemptService.ClearAnswer(ctx.Request.Context(), userID, attemptID, questionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 交卷
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Failure 409 {object} util.Response "已交卷"
// @Router /api/attempts/{id}/finalize [post]
func (c *AttemptController) Finalize(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.AttemptService.Finalize(ctx.Request.Context(), userID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

type SubmitRequest struct {
	Answers []service.AnswerInput `json:"answers"`
}

// @Summary 提交整份答卷并交卷
// @Description 空作答跳过；任一作答不合法则整体回滚
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Param body body SubmitRequest true "全部作答"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AttemptService.Submit(ctx.Request.Context(), userID, attemptID, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 放弃答题
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Router /api/attempts/{id}/abandon [post]
func (c *AttemptController) Abandon(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.AttemptService.Abandon(ctx.Request.Context(), userID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 删除答题记录
// @Description 仅测验作者可以重置学生的答题
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "答题ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [delete]
func (c *AttemptController) DeleteAttempt(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.AttemptService.DeleteAttempt(ctx.Request.Context(), userID, attemptID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
