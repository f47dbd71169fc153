package api

import (
	"github.com/fyerfyer/news-classifier/api/handler"
	"github.com/fyerfyer/news-classifier/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	classifierHandler *handler.ClassifierHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	// 不使用gin.Default，panic由错误中间件统一恢复
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(Cors())
	router.Use(middleware.ErrorMiddleware())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	// 创建API分组
	api := router.Group("/api")
	{
		// 预测API
		predictGroup := api.Group("/predict")
		{
			// 批量预测 - POST /api/predict
			predictGroup.POST("", classifierHandler.Predict)

			// CSV预测 - POST /api/predict/csv
			predictGroup.POST("/csv", classifierHandler.PredictCSV)
		}

		// 再训练API
		retrainGroup := api.Group("/retrain")
		{
			// 同步再训练 - POST /api/retrain
			retrainGroup.POST("", classifierHandler.Retrain)

			// CSV再训练 - POST /api/retrain/csv
			retrainGroup.POST("/csv", classifierHandler.RetrainCSV)

			// 异步再训练 - POST /api/retrain/async
			retrainGroup.POST("/async", classifierHandler.RetrainAsync)
		}

		// 按来源列出任务 - GET /api/tasks?source=
		api.GET("/tasks", taskHandler.ListTasks)
		// 任务状态 - GET /api/tasks/:id?wait=10s
		api.GET("/tasks/:id", taskHandler.GetTaskStatus)

		// 模型API
		modelGroup := api.Group("/model")
		{
			// 模型概况 - GET /api/model
			modelGroup.GET("", classifierHandler.GetModel)

			// 训练记录 - GET /api/model/history
			modelGroup.GET("/history", classifierHandler.GetHistory)
		}

		// 健康检查API
		api.GET("/health", classifierHandler.Health)
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
