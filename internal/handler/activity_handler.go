package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portal/internal/middleware"
	"portal/internal/service"
	"portal/pkg/response"
)

type ActivityHandler struct {
	activityService service.ActivityService
}

func NewActivityHandler(activityService service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) RegisterRoutes(router *gin.RouterGroup) {
	activities := router.Group("/api/activities")
	{
		activities.GET("", middleware.Authenticate(), h.ListActivities)
		activities.GET("/:id", middleware.Authenticate(), h.GetActivity)
		activities.GET("/:id/eligible-approvers", middleware.Authenticate(), h.GetEligibleApprovers)
		activities.POST("", middleware.RequirePermission("Can Manage Roles"), h.CreateActivity)
		activities.PUT("/:id", middleware.RequirePermission("Can Manage Roles"), h.UpdateActivity)
		activities.DELETE("/:id", middleware.RequirePermission("Can Manage Roles"), h.DeleteActivity)
	}
}

func (h *ActivityHandler) ListActivities(c *gin.Context) {
	activities, err := h.activityService.ListActivities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch activities"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, activities))
}

func (h *ActivityHandler) GetActivity(c *gin.Context) {
	activity, err := h.activityService.GetActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, activity))
}

// GetEligibleApprovers lists members who may approve a request for the
// activity from the given member. Defaults to the acting member.
func (h *ActivityHandler) GetEligibleApprovers(c *gin.Context) {
	requesterID := c.Query("member_id")
	if requesterID == "" {
		memberID, _ := c.Get("memberID")
		requesterID, _ = memberID.(string)
	}

	approvers, err := h.activityService.EligibleApprovers(c.Request.Context(), c.Param("id"), requesterID)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvers))
}

func (h *ActivityHandler) CreateActivity(c *gin.Context) {
	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	activity, err := h.activityService.CreateActivity(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, activity))
}

func (h *ActivityHandler) UpdateActivity(c *gin.Context) {
	var req service.UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	activity, err := h.activityService.UpdateActivity(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, activity))
}

func (h *ActivityHandler) DeleteActivity(c *gin.Context) {
	if err := h.activityService.DeleteActivity(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Activity deleted"))
}
