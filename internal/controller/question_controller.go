package controller

import (
	"studybuddy_backend/internal/service"
	"studybuddy_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// QuestionController 题目与选项的编辑，仅测验作者可用
type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// @Summary 添加题目
// @Tags 题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param body body service.QuestionReq true "题目及选项"
// @Success 201 {object} util.Response{data=model.Question}
// @Failure 422 {object} util.Response
// @Router /api/quizzes/{id}/questions [post]
func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	c.upsert(ctx, false)
}

// @Summary 更新题目
// @Description 选项按 ID 同步：带 ID 的更新，不带 ID 的新建，未出现的删除
// @Tags 题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param questionId path int true "题目ID"
// @Param body body service.QuestionReq true "题目及选项"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/quizzes/{id}/questions/{questionId} [put]
func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	c.upsert(ctx, true)
}

func (c *QuestionController) upsert(ctx *gin.Context, update bool) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var questionID uint
	if update {
		if questionID, ok = pathID(ctx, "questionId"); !ok {
			return
		}
	}

	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.UpsertQuestion(ctx.Request.Context(), userID, quizID, questionID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if update {
		util.Success(ctx, question)
		return
	}
	util.Created(ctx, question)
}

// @Summary 删除题目
// @Tags 题目
// @Produce json
// @Security BearerAuth
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/questions/{questionId} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}

	if err := c.QuestionService.DeleteQuestion(ctx.Request.Context(), userID, questionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 题目排序
// @Tags 题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param body body OrderRequest true "题目ID顺序"
// @Success 200 {object} util.Response
// @Router /api/quizzes/{id}/reorder [put]
func (c *QuestionController) ReorderQuestions(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	quizID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req OrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.QuestionService.ReorderQuestions(ctx.Request.Context(), userID, quizID, req.Order); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 添加选项
// @Description 单选/判断题中新选项设为正确时，其余选项自动取消正确
// @Tags 选项
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param questionId path int true "题目ID"
// @Param body body service.CreateOptionReq true "选项"
// @Success 201 {object} util.Response{data=model.Option}
// @Router /api/questions/{questionId}/options [post]
func (c *QuestionController) CreateOption(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req service.CreateOptionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	option, err := c.QuestionService.CreateOption(ctx.Request.Context(), userID, questionID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, option)
}

// @Summary 选项排序
// @Tags 选项
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param questionId path int true "题目ID"
// @Param body body OrderRequest true "选项ID顺序"
// @Success 200 {object} util.Response
// @Router /api/questions/{questionId}/reorder [put]
func (c *QuestionController) ReorderOptions(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req OrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.QuestionService.ReorderOptions(ctx.Request.Context(), userID, questionID, req.Order); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 更新选项
// @Tags 选项
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param optionId path int true "选项ID"
// @Param body body service.UpdateOptionReq true "选项"
// @Success 200 {object} util.Response{data=model.Option}
// @Router /api/options/{optionId} [put]
func (c *QuestionController) UpdateOption(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	optionID, ok := pathID(ctx, "optionId")
	if !ok {
		return
	}
	var req service.UpdateOptionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	option, err := c.QuestionService.UpdateOption(ctx.Request.Context(), userID, optionID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, option)
}

type CorrectnessRequest struct {
	IsCorrect *bool `json:"isCorrect" binding:"required"`
}

// @Summary 设置选项正确性
// @Tags 选项
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param optionId path int true "选项ID"
// @Param body body CorrectnessRequest true "是否正确"
// @Success 200 {object} util.Response{data=model.Option}
// @Router /api/options/{optionId}/correct [patch]
func (c *QuestionController) SetOptionCorrectness(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	optionID, ok := pathID(ctx, "optionId")
	if !ok {
		return
	}
	var req CorrectnessRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	option, err := c.QuestionService.SetOptionCorrectness(ctx.Request.Context(), userID, optionID, *req.IsCorrect)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, option)
}

// @Summary 删除选项
// @Tags 选项
// @Produce json
// @Security BearerAuth
// @Param optionId path int true "选项ID"
// @Success 200 {object} util.Response
// @Router /api/options/{optionId} [delete]
func (c *QuestionController) DeleteOption(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	optionID, ok := pathID(ctx, "optionId")
	if !ok {
		return
	}

	if err := c.QuestionService.DeleteOption(ctx.Request.Context(), userID, optionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
