package handler

import (
	"net/http"
	"strconv"

	"lapor-service/internal/apperror"
	"lapor-service/internal/messaging"
	"lapor-service/internal/model"
	"lapor-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReportHandler struct {
	reportService *service.ReportService
	queryService  *service.QueryService
	hub           *messaging.ActivityHub
}

func NewReportHandler(reportService *service.ReportService, queryService *service.QueryService, hub *messaging.ActivityHub) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		queryService:  queryService,
		hub:           hub,
	}
}

// RegisterRoutes mounts the report API on rg. rg must already run Authenticate.
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateReport)
	rg.GET("", h.GetReports)
	rg.GET("/all", h.GetAllReports)
	rg.GET("/my", h.GetMyReports)
	rg.GET("/status/:status", h.GetReportsByStatus)
	rg.GET("/stats", h.GetStats)
	rg.GET("/recent", h.GetRecentActivity)
	rg.GET("/stream", h.StreamActivity)
	rg.GET("/:id", h.GetReportByID)
	rg.GET("/:id/history", h.GetHistory)
	rg.GET("/:id/transitions", h.GetTransitions)
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.PATCH("/:id/verify", h.VerifyReport)
	rg.DELETE("/:id", h.DeleteReport)
}

// Handles POST / - files a new report for the authenticated actor.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req model.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	report, err := h.reportService.CreateReport(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Report created successfully",
		"report":  report,
	})
}

// Handles GET / - admins get every report, users their own.
func (h *ReportHandler) GetReports(c *gin.Context) {
	if actorFrom(c).IsAdmin() {
		h.GetAllReports(c)
		return
	}
	h.GetMyReports(c)
}

// Handles GET /all - admin listing with status filter and sorting.
func (h *ReportHandler) GetAllReports(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}

	response, err := h.queryService.ListAll(c.Request.Context(), actorFrom(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles GET /my - the actor's own reports with optional status and search filters.
func (h *ReportHandler) GetMyReports(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}

	response, err := h.queryService.ListByOwner(c.Request.Context(), actorFrom(c).ID, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles GET /status/:status. Users only see their own reports in the result.
func (h *ReportHandler) GetReportsByStatus(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}

	actor := actorFrom(c)
	status := model.ReportStatus(c.Param("status"))
	var response *model.ReportListResponse
	if actor.IsAdmin() {
		response, err = h.queryService.ListByStatus(c.Request.Context(), status, opts)
	} else {
		opts.Status = string(status)
		response, err = h.queryService.ListByOwner(c.Request.Context(), actor.ID, opts)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles GET /stats - counts by status plus recent activity.
func (h *ReportHandler) GetStats(c *gin.Context) {
	stats, err := h.queryService.Dashboard(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Handles GET /recent?limit=n.
func (h *ReportHandler) GetRecentActivity(c *gin.Context) {
	limit, err := intQuery(c, "limit", service.DefaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	reports, err := h.queryService.RecentActivity(c.Request.Context(), actorFrom(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Handles GET /:id - visible to the reporter and to admins.
func (h *ReportHandler) GetReportByID(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	report, err := h.reportService.ViewReport(c.Request.Context(), actorFrom(c), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles GET /:id/history?order=recent|chronological.
func (h *ReportHandler) GetHistory(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	var recentFirst bool
	switch order := c.DefaultQuery("order", "chronological"); order {
	case "chronological":
	case "recent":
		recentFirst = true
	default:
		respondError(c, apperror.Validation([]apperror.FieldError{{Field: "order", Message: "must be recent or chronological"}}))
		return
	}

	history, err := h.reportService.History(c.Request.Context(), actorFrom(c), reportID, recentFirst)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report_id": reportID, "history": history})
}

// Handles GET /:id/transitions - the statuses the actor may move the report to.
func (h *ReportHandler) GetTransitions(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	options, err := h.reportService.AllowedTransitions(c.Request.Context(), actorFrom(c), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// Handles PATCH /:id/status - admin-only workflow transition.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	report, err := h.reportService.Transition(c.Request.Context(), reportID, actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Status updated successfully",
		"report":  report,
	})
}

// Handles PATCH /:id/verify - accepts only verified or rejected.
func (h *ReportHandler) VerifyReport(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req model.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	report, err := h.reportService.Verify(c.Request.Context(), reportID, actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Report " + string(report.Status) + " successfully",
		"report":  report,
	})
}

// Handles DELETE /:id - owner or admin; reports the evidence refs released.
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	reportID, ok := reportIDParam(c)
	if !ok {
		return
	}

	refs, err := h.reportService.DeleteReport(c.Request.Context(), reportID, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Report deleted successfully",
		"released_refs": refs,
	})
}

// Handles GET /stream - server-sent report events for the actor.
func (h *ReportHandler) StreamActivity(c *gin.Context) {
	actor := actorFrom(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := h.hub.Subscribe(*actor)
	defer h.hub.Unsubscribe(client)

	c.SSEvent("connected", gin.H{"message": "SSE connection established"})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		}
	}
}

func reportIDParam(c *gin.Context) (uuid.UUID, bool) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperror.Validation([]apperror.FieldError{{Field: "id", Message: "must be a UUID"}}))
		return uuid.Nil, false
	}
	return reportID, true
}

func listOptions(c *gin.Context) (service.ListOptions, error) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		return service.ListOptions{}, err
	}
	pageSize, err := intQuery(c, "page_size", 0)
	if err != nil {
		return service.ListOptions{}, err
	}
	if pageSize == 0 {
		// older clients send limit
		if pageSize, err = intQuery(c, "limit", 0); err != nil {
			return service.ListOptions{}, err
		}
	}

	return service.ListOptions{
		Page:          page,
		PageSize:      pageSize,
		SortField:     c.Query("sort"),
		SortDirection: c.Query("order"),
		Status:        c.Query("status"),
		Search:        c.Query("search"),
	}, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation([]apperror.FieldError{{Field: key, Message: "must be an integer"}})
	}
	return n, nil
}
