package app

import (
	"studybuddy_backend/docs"
	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/middleware"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	// 使用当前访问的 host
	docs.SwaggerInfo.Host = ""
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, cfg)

	// 2. 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerQuizRoutes(authGroup, c)
		a.registerAttemptRoutes(authGroup, c)
	}

	// 3. 管理员接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/quiz-totals/recompute", c.quiz.RecomputeTotals)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 可选认证：作者查看自己的测验时能看到答案
		public.GET("/quizzes", c.quiz.ListQuizzes)
		public.GET("/quizzes/:id", middleware.OptionalAuthMiddleware(cfg.JWT.Secret), c.quiz.GetQuiz)
	}
}

func (a *App) registerQuizRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.GET("/dashboard", c.dashboard.GetDashboard)
	rg.GET("/my/quizzes", c.quiz.ListMyQuizzes)

	rg.POST("/quizzes", c.quiz.CreateQuiz)
	rg.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
	rg.DELETE("/quizzes/:id", c.quiz.DeleteQuiz)
	rg.PUT("/quizzes/:id/reorder", c.question.ReorderQuestions)

	rg.POST("/quizzes/:id/questions", c.question.CreateQuestion)
	rg.PUT("/quizzes/:id/questions/:questionId", c.question.UpdateQuestion)
	rg.DELETE("/questions/:questionId", c.question.DeleteQuestion)
	rg.POST("/questions/:questionId/options", c.question.CreateOption)
	rg.PUT("/questions/:questionId/reorder", c.question.ReorderOptions)

	rg.PUT("/options/:optionId", c.question.UpdateOption)
	rg.PATCH("/options/:optionId/correct", c.question.SetOptionCorrectness)
	rg.DELETE("/options/:optionId", c.question.DeleteOption)
}

func (a *App) registerAttemptRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/quizzes/:id/attempts", c.attempt.StartAttempt)
	rg.GET("/quizzes/:id/attempts", c.attempt.ListAttempts)

	attempts := rg.Group("/attempts/:id")
	{
		attempts.GET("", c.attempt.GetAttempt)
		attempts.DELETE("", c.attempt.DeleteAttempt)
		attempts.PUT("/answers", c.attempt.RecordAnswer)
		attempts.DELETE("/answers/:questionId", c.attempt.ClearAnswer)
		attempts.POST("/finalize", c.attempt.Finalize)
		attempts.POST("/submit", c.attempt.Submit)
		attempts.POST("/abandon", c.attempt.Abandon)
	}
}
