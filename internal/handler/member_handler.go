package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"portal/internal/middleware"
	"portal/internal/service"
	"portal/pkg/pagination"
	"portal/pkg/response"
)

type MemberHandler struct {
	memberService     service.MemberService
	permissionService service.PermissionService
	grantService      service.GrantService
}

func NewMemberHandler(memberService service.MemberService, permissionService service.PermissionService, grantService service.GrantService) *MemberHandler {
	return &MemberHandler{memberService: memberService, permissionService: permissionService, grantService: grantService}
}

func (h *MemberHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Public auth routes
	router.POST("/login", h.Login)
	router.POST("/refresh", h.RefreshToken)
	router.POST("/logout", h.Logout)

	router.GET("/me", middleware.Authenticate(), h.GetMe)

	members := router.Group("/api/members")
	{
		members.GET("", middleware.RequirePermission("Can Manage Members"), h.ListMembers)
		members.GET("/:id", middleware.RequirePermission("Can Manage Members"), h.GetMemberByID)
		members.POST("", middleware.RequirePermission("Can Manage Members"), h.CreateMember)
		members.PUT("/:id", middleware.RequirePermission("Can Manage Members"), h.UpdateMember)
		members.DELETE("/:id", middleware.RequirePermission("Can Manage Members"), h.DeleteMember)
		members.GET("/:id/permissions", middleware.RequirePermission("Can Manage Members"), h.GetEffectivePermissions)
		members.GET("/:id/grants", middleware.RequirePermission("Can Manage Roles"), h.ListGrants)
		members.POST("/:id/grants", middleware.RequirePermission("Can Manage Roles"), h.CreateGrant)
	}
	router.DELETE("/api/grants/:id", middleware.RequirePermission("Can Manage Roles"), h.EndGrant)
}

// Login authenticates a member by email and password
// @Summary      Login member
// @Description  Authenticates a member by email and password, returning access and refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /login [post]
func (h *MemberHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	tokenRes, err := h.memberService.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return
	}

	middleware.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// RefreshToken issues new access and refresh tokens
// @Summary      Refresh token
// @Description  Issues a new access token and refresh token using a valid refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest  true  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /refresh [post]
func (h *MemberHandler) RefreshToken(c *gin.Context) {
	// Try the cookie first, fall back to the body
	refreshToken, cookieErr := c.Cookie("refresh_token")
	var req service.RefreshTokenRequest

	if cookieErr != nil || refreshToken == "" {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
			return
		}
	} else {
		req = service.RefreshTokenRequest{RefreshToken: refreshToken}
	}

	tokenRes, err := h.memberService.RefreshToken(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return
	}

	middleware.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// Logout clears auth cookies and revokes the refresh token
func (h *MemberHandler) Logout(c *gin.Context) {
	if refreshToken, err := c.Cookie("refresh_token"); err == nil {
		_ = h.memberService.Logout(c.Request.Context(), refreshToken)
	}
	middleware.ClearTokenCookies(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out"))
}

// GetMe returns the authenticated member with their effective permissions
// @Summary      Get current member
// @Description  Get the currently authenticated member and their derived permission set
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /me [get]
func (h *MemberHandler) GetMe(c *gin.Context) {
	memberIDVal, _ := c.Get("memberID")
	memberIDStr, _ := memberIDVal.(string)

	member, err := h.memberService.GetMemberByID(c.Request.Context(), memberIDStr)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	memberID, err := uuid.Parse(memberIDStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token claims"))
		return
	}
	perms, err := h.permissionService.EffectivePermissions(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to derive permissions"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"member":      member,
		"permissions": perms,
	}))
}

// CreateMember creates a new member account
// @Summary      Create member
// @Tags         members
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateMemberRequest  true  "Create Member Payload"
// @Success      201      {object}  response.Response{data=service.MemberResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/members [post]
func (h *MemberHandler) CreateMember(c *gin.Context) {
	var req service.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	member, err := h.memberService.CreateMember(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, member))
}

// ListMembers returns a paginated member list
// @Summary      List members
// @Tags         members
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response
// @Router       /api/members [get]
func (h *MemberHandler) ListMembers(c *gin.Context) {
	params := pagination.Parse(c)

	members, total, err := h.memberService.ListMembers(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch members"))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, members, params.Meta(total)))
}

// GetMemberByID fetches one member by UUID
func (h *MemberHandler) GetMemberByID(c *gin.Context) {
	member, err := h.memberService.GetMemberByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, member))
}

// UpdateMember updates a member's details excluding password
func (h *MemberHandler) UpdateMember(c *gin.Context) {
	var req service.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	member, err := h.memberService.UpdateMember(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, member))
}

// DeleteMember soft deletes a member
func (h *MemberHandler) DeleteMember(c *gin.Context) {
	if err := h.memberService.DeleteMember(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Member deleted successfully"))
}

// GetEffectivePermissions returns the member's derived permission set as of now.
func (h *MemberHandler) GetEffectivePermissions(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid member id"))
		return
	}

	perms, err := h.permissionService.EffectivePermissions(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// ListGrants returns every role grant on the member, active or not.
func (h *MemberHandler) ListGrants(c *gin.Context) {
	grants, err := h.grantService.ListGrants(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, grants))
}

// CreateGrant grants a role to the member for a time window.
func (h *MemberHandler) CreateGrant(c *gin.Context) {
	approverID, _ := c.Get("memberID")
	approverIDStr, _ := approverID.(string)

	var req service.CreateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	req.MemberID = c.Param("id")

	grant, err := h.grantService.CreateGrant(c.Request.Context(), approverIDStr, req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, grant))
}

// EndGrant ends a role grant now.
func (h *MemberHandler) EndGrant(c *gin.Context) {
	if err := h.grantService.EndGrant(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Grant ended"))
}
