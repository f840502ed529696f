package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"portal/internal/middleware"
	"portal/internal/repository"
	"portal/internal/service"
	"portal/pkg/pagination"
	"portal/pkg/response"
)

type AuthorizationHandler struct {
	authorizationService service.AuthorizationService
}

func NewAuthorizationHandler(authorizationService service.AuthorizationService) *AuthorizationHandler {
	return &AuthorizationHandler{authorizationService: authorizationService}
}

func (h *AuthorizationHandler) RegisterRoutes(router *gin.RouterGroup) {
	auths := router.Group("/api/authorizations")
	{
		auths.POST("", middleware.Authenticate(), h.RequestAuthorization)
		auths.GET("", middleware.Authenticate(), h.ListAuthorizations)
		auths.GET("/:id/steps", middleware.Authenticate(), h.GetApprovalChain)
		auths.PUT("/:id/revoke", middleware.RequirePermission("Can Manage Members"), h.RevokeAuthorization)

		auths.GET("/approvals/pending", middleware.Authenticate(), h.ListPendingApprovals)
		auths.GET("/approvals/token/:token", h.ResolveToken)
		auths.PUT("/approvals/:id/approve", middleware.Authenticate(), h.ApproveStep)
		auths.PUT("/approvals/:id/deny", middleware.Authenticate(), h.DenyStep)
	}
}

// RequestAuthorization opens a new authorization request and its first
// approval step.
func (h *AuthorizationHandler) RequestAuthorization(c *gin.Context) {
	var req service.RequestAuthorizationDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	// A member can only request for themselves unless acting through the
	// member-management surface.
	if req.MemberID == "" {
		memberID, _ := c.Get("memberID")
		req.MemberID, _ = memberID.(string)
	}

	result, err := h.authorizationService.Request(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListAuthorizations returns authorizations filtered by member, activity
// and status.
func (h *AuthorizationHandler) ListAuthorizations(c *gin.Context) {
	params := pagination.Parse(c)

	filter := repository.AuthorizationFilter{
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	}
	if memberID := c.Query("member_id"); memberID != "" {
		id, err := uuid.Parse(memberID)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid member_id"))
			return
		}
		filter.MemberID = &id
	}
	if activityID := c.Query("activity_id"); activityID != "" {
		id, err := uuid.Parse(activityID)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid activity_id"))
			return
		}
		filter.ActivityID = &id
	}

	auths, total, err := h.authorizationService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, auths, params.Meta(total)))
}

// GetApprovalChain returns every approval step of one authorization, in
// request order.
func (h *AuthorizationHandler) GetApprovalChain(c *gin.Context) {
	steps, err := h.authorizationService.ApprovalChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, steps))
}

// ApproveStep records the acting member's approval on a pending step.
func (h *AuthorizationHandler) ApproveStep(c *gin.Context) {
	memberID, _ := c.Get("memberID")
	memberIDStr, _ := memberID.(string)

	var req service.ApproveStepDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Empty body is fine on the final step.
		req = service.ApproveStepDTO{}
	}

	result, err := h.authorizationService.Approve(c.Request.Context(), c.Param("id"), memberIDStr, req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DenyStep records a denial, which terminates the authorization.
func (h *AuthorizationHandler) DenyStep(c *gin.Context) {
	memberID, _ := c.Get("memberID")
	memberIDStr, _ := memberID.(string)

	var req service.DenyStepDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req = service.DenyStepDTO{}
	}

	result, err := h.authorizationService.Deny(c.Request.Context(), c.Param("id"), memberIDStr, req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RevokeAuthorization revokes a current or upcoming authorization.
func (h *AuthorizationHandler) RevokeAuthorization(c *gin.Context) {
	memberID, _ := c.Get("memberID")
	memberIDStr, _ := memberID.(string)

	var req service.RevokeAuthorizationDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Revocation reason is required"))
		return
	}

	result, err := h.authorizationService.Revoke(c.Request.Context(), c.Param("id"), memberIDStr, req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListPendingApprovals returns the steps waiting on the acting member.
func (h *AuthorizationHandler) ListPendingApprovals(c *gin.Context) {
	memberID, _ := c.Get("memberID")
	memberIDStr, _ := memberID.(string)

	steps, err := h.authorizationService.PendingForApprover(c.Request.Context(), memberIDStr)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, steps))
}

// ResolveToken resolves an email-link token to the pending step it points
// at. The endpoint is public: the token itself is the credential.
func (h *AuthorizationHandler) ResolveToken(c *gin.Context) {
	result, err := h.authorizationService.ResolveToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
