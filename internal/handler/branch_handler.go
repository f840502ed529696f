package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portal/internal/middleware"
	"portal/internal/service"
	"portal/pkg/response"
)

type BranchHandler struct {
	branchService service.BranchService
}

func NewBranchHandler(branchService service.BranchService) *BranchHandler {
	return &BranchHandler{branchService: branchService}
}

func (h *BranchHandler) RegisterRoutes(router *gin.RouterGroup) {
	branches := router.Group("/api/branches")
	{
		branches.GET("", middleware.Authenticate(), h.ListBranches)
		branches.GET("/:id", middleware.Authenticate(), h.GetBranch)
		branches.GET("/:id/descendants", middleware.Authenticate(), h.GetDescendants)
		branches.POST("", middleware.RequirePermission("Can Manage Members"), h.CreateBranch)
		branches.PUT("/:id", middleware.RequirePermission("Can Manage Members"), h.UpdateBranch)
	}
}

// ListBranches returns the full branch tree as a flat list with nested-set bounds.
func (h *BranchHandler) ListBranches(c *gin.Context) {
	branches, err := h.branchService.ListBranches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch branches"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, branches))
}

func (h *BranchHandler) GetBranch(c *gin.Context) {
	branch, err := h.branchService.GetBranch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}

// GetDescendants returns every branch inside the branch's subtree.
func (h *BranchHandler) GetDescendants(c *gin.Context) {
	branches, err := h.branchService.Descendants(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, branches))
}

func (h *BranchHandler) CreateBranch(c *gin.Context) {
	var req service.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	branch, err := h.branchService.CreateBranch(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, branch))
}

func (h *BranchHandler) UpdateBranch(c *gin.Context) {
	var req service.UpdateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	branch, err := h.branchService.UpdateBranch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}
