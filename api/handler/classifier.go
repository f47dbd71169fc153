package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/fyerfyer/news-classifier/api/middleware"
	"github.com/fyerfyer/news-classifier/api/model"
	"github.com/fyerfyer/news-classifier/internal/dataset"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/services"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ClassifierHandler 处理分类相关的API请求
type ClassifierHandler struct {
	service *services.ClassifierService // 分类服务
	logger  *logrus.Logger              // 日志记录器
}

// NewClassifierHandler 创建新的分类处理器
func NewClassifierHandler(service *services.ClassifierService) *ClassifierHandler {
	return &ClassifierHandler{
		service: service,
		logger:  middleware.GetLogger(),
	}
}

// Predict 对一批新闻进行分类
// POST /api/predict
func (h *ClassifierHandler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	preds, err := h.service.Predict(c.Request.Context(), req.Documents())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewPredictResponse(preds)))
}

// PredictCSV 对上传的CSV语料进行分类
// 不做数据清理，每个数据行都有一条预测，下标与数据行一一对应
// POST /api/predict/csv
func (h *ClassifierHandler) PredictCSV(c *gin.Context) {
	var req model.CSVUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	table, ok := h.readTable(c, &req)
	if !ok {
		return
	}

	docs, missing := dataset.ToDocuments(table)
	if len(missing) > 0 {
		middleware.HandleError(c, middleware.NewValidationError("csv is missing required columns",
			"missing columns: "+strings.Join(missing, ", ")))
		return
	}
	if len(docs) == 0 {
		middleware.HandleError(c, middleware.NewValidationError("csv contains no rows"))
		return
	}

	preds, err := h.service.Predict(c.Request.Context(), docs)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewPredictResponse(preds)))
}

// Retrain 用带标签的批次同步更新模型
// POST /api/retrain
func (h *ClassifierHandler) Retrain(c *gin.Context) {
	var req model.RetrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	outcome, err := h.service.Retrain(c.Request.Context(), req.Documents())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.RetrainResponse{
		Version:    outcome.Version,
		Metrics:    outcome.Metrics,
		DurationMs: outcome.Duration.Milliseconds(),
	}))
}

// RetrainCSV 用上传的CSV语料更新模型
// 携带 async=true 时提交异步任务并立即返回任务ID
// POST /api/retrain/csv
func (h *ClassifierHandler) RetrainCSV(c *gin.Context) {
	var req model.CSVUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	docs, report, ok := h.readLabeledUpload(c, &req)
	if !ok {
		return
	}

	if req.Async {
		taskID, err := h.service.EnqueueRetrain(c.Request.Context(), docs, req.File.Filename)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(&model.AsyncRetrainResponse{
			TaskID:  taskID,
			Status:  string(taskqueue.StatusPending),
			Samples: len(docs),
			Profile: &report,
		}))
		return
	}

	outcome, err := h.service.RetrainFrom(c.Request.Context(), docs, req.File.Filename)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.RetrainResponse{
		Version:    outcome.Version,
		Metrics:    outcome.Metrics,
		DurationMs: outcome.Duration.Milliseconds(),
		Profile:    &report,
	}))
}

// RetrainAsync 提交异步再训练任务
// POST /api/retrain/async
func (h *ClassifierHandler) RetrainAsync(c *gin.Context) {
	var req model.RetrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	source := req.Source
	if source == "" {
		source = services.SourceAPI
	}

	docs := req.Documents()
	taskID, err := h.service.EnqueueRetrain(c.Request.Context(), docs, source)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(&model.AsyncRetrainResponse{
		TaskID:  taskID,
		Status:  string(taskqueue.StatusPending),
		Samples: len(docs),
	}))
}

// GetModel 获取当前模型概况
// GET /api/model
func (h *ClassifierHandler) GetModel(c *gin.Context) {
	info := h.service.Info(c.Request.Context())
	if !info.Initialized {
		middleware.HandleError(c, middleware.NewModelUnavailableError("no model has been bootstrapped or loaded"))
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// GetHistory 分页获取训练记录
// GET /api/model/history
func (h *ClassifierHandler) GetHistory(c *gin.Context) {
	var req model.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()
	runs, total, err := h.service.History((page-1)*pageSize, pageSize, req.Filters())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list training runs")
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.HistoryResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Runs:     model.ConvertToRunInfo(runs),
	}))
}

// Health 健康检查
// 模型未加载时返回 degraded，进程本身仍然存活
// GET /api/health
func (h *ClassifierHandler) Health(c *gin.Context) {
	resp := &model.HealthResponse{
		Status:       "ok",
		ModelReady:   h.service.Ready(),
		ModelVersion: h.service.Version(),
	}
	if !resp.ModelReady {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// readTable 读取上传的CSV文件
// 失败时已写入错误，返回 ok=false
func (h *ClassifierHandler) readTable(c *gin.Context, req *model.CSVUploadRequest) (models.Table, bool) {
	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": req.File.Filename,
		}).Error("Failed to open uploaded file")
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return models.Table{}, false
	}
	defer file.Close()

	table, err := dataset.ReadCSV(file, req.SeparatorRune(dataset.DefaultSeparator))
	if err != nil {
		middleware.HandleError(c, err)
		return models.Table{}, false
	}

	h.logger.WithFields(logrus.Fields{
		"filename": req.File.Filename,
		"size":     req.File.Size,
		"columns":  len(table.Columns),
		"rows":     len(table.Rows),
	}).Debug("CSV upload read")
	return table, true
}

// readLabeledUpload 读取带标签的CSV并做结构化清理
// 失败时已写入错误，返回 ok=false
func (h *ClassifierHandler) readLabeledUpload(c *gin.Context, req *model.CSVUploadRequest) ([]models.Document, model.ProfileInfo, bool) {
	start := time.Now()
	table, ok := h.readTable(c, req)
	if !ok {
		return nil, model.ProfileInfo{}, false
	}

	docs, report := dataset.Profile(table)
	h.logger.WithFields(logrus.Fields{
		"filename":           req.File.Filename,
		"input_rows":         report.InputRows,
		"output_rows":        report.OutputRows,
		"dropped_missing":    report.DroppedMissing,
		"dropped_duplicates": report.DroppedDuplicates,
		"duration":           time.Since(start).String(),
	}).Info("CSV upload profiled")

	if len(docs) == 0 {
		var details []string
		if len(report.MissingColumns) > 0 {
			details = append(details, "missing columns: "+strings.Join(report.MissingColumns, ", "))
		}
		middleware.HandleError(c, middleware.NewValidationError("csv contains no usable rows", details...))
		return nil, model.ProfileInfo{}, false
	}

	return docs, report, true
}
