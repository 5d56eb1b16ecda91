package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"batchflow/pkg/errutil"
	"batchflow/pkg/health"
	"batchflow/services/journal"
	"batchflow/services/schedule"
)

const tenantHeader = "X-Tenant-ID"

// Handler exposes the scheduling operations over HTTP. Run outcomes are
// only visible through the history endpoint, never synchronously.
type Handler struct {
	scheduler *schedule.Scheduler
}

func NewHandler(scheduler *schedule.Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler, healthSvc health.HealthService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", healthSvc.Liveness)
	router.GET("/readyz", healthSvc.Readiness)

	v1 := router.Group("/v1", requireTenant)
	v1.POST("/tasks", h.ScheduleTask)
	v1.GET("/tasks", h.ListTasks)
	v1.GET("/tasks/:id", h.GetTask)
	v1.DELETE("/tasks/:id", h.CancelTask)
	v1.GET("/tasks/:id/history", h.GetHistory)

	return router
}

func requireTenant(c *gin.Context) {
	if c.GetHeader(tenantHeader) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": errutil.StatusBadRequest, "message": "missing " + tenantHeader + " header"},
		})
		return
	}
	c.Next()
}

func tenantID(c *gin.Context) string {
	return c.GetHeader(tenantHeader)
}

func (h *Handler) ScheduleTask(c *gin.Context) {
	var req schedule.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	task, err := h.scheduler.ScheduleTask(c.Request.Context(), tenantID(c), req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

func (h *Handler) ListTasks(c *gin.Context) {
	status := schedule.TaskStatus(c.Query("status"))

	tasks, err := h.scheduler.ListTasks(c.Request.Context(), tenantID(c), status)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.scheduler.GetTask(c.Request.Context(), c.Param("id"), tenantID(c))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *Handler) CancelTask(c *gin.Context) {
	if err := h.scheduler.CancelTask(c.Request.Context(), c.Param("id"), tenantID(c)); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetHistory(c *gin.Context) {
	start, err := parseTimeQuery(c.Query("start"))
	if err != nil {
		renderError(c, errutil.BadRequest("invalid start date", errutil.WithErr(err)))
		return
	}
	end, err := parseTimeQuery(c.Query("end"))
	if err != nil {
		renderError(c, errutil.BadRequest("invalid end date", errutil.WithErr(err)))
		return
	}

	entries, err := h.scheduler.GetHistory(c.Request.Context(), c.Param("id"), tenantID(c), start, end)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func parseTimeQuery(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// accept bare dates as well
		t, err = time.Parse("2006-01-02", value)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func renderError(c *gin.Context, err error) {
	var verr *journal.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":       errutil.StatusValidationFailed,
				"message":    "dataset failed validation",
				"violations": verr.Violations,
			},
		})
		return
	}

	var base errutil.BaseError
	if errors.As(err, &base) {
		c.JSON(base.Code.HTTPStatus(), base.JSON())
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": errutil.StatusInternal, "message": err.Error()},
	})
}
