package providers

import (
	"net/http"
	"strconv"

	"github.com/aikara/image-vault/api/common"
	"github.com/aikara/image-vault/api/middleware"
	"github.com/aikara/image-vault/database/models"
	"github.com/aikara/image-vault/internal/services/provider"
	"github.com/gin-gonic/gin"
)

// Handler 存储提供者接口
type Handler struct {
	registry *provider.Registry
}

// NewHandler 创建提供者处理器
func NewHandler(registry *provider.Registry) *Handler {
	return &Handler{registry: registry}
}

type createRequest struct {
	Name         string            `json:"name" binding:"required"`
	ProviderType string            `json:"provider_type" binding:"required"`
	Config       map[string]string `json:"config"`
	Credentials  map[string]string `json:"credentials"`
	IsDefault    bool              `json:"is_default"`
	IsActive     *bool             `json:"is_active"`
}

type updateRequest struct {
	Name         *string           `json:"name"`
	ProviderType *string           `json:"provider_type"`
	Config       map[string]string `json:"config"`
	Credentials  map[string]string `json:"credentials"`
	IsActive     *bool             `json:"is_active"`
}

// Create POST /api/v1/providers
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := h.registry.Create(c.Request.Context(), userID, provider.CreateInput{
		Name:         req.Name,
		ProviderType: models.ProviderType(req.ProviderType),
		Config:       req.Config,
		Credentials:  req.Credentials,
		IsDefault:    req.IsDefault,
		IsActive:     req.IsActive,
	})
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, created.ToResponse())
}

// List GET /api/v1/providers
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.registry.List(c.Request.Context(), userID)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	responses := make([]*models.ProviderResponse, 0, len(list))
	for _, p := range list {
		responses = append(responses, p.ToResponse())
	}
	common.RespondSuccess(c, responses)
}

// Get GET /api/v1/providers/:id
func (h *Handler) Get(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	p, err := h.registry.Get(c.Request.Context(), userID, id)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, p.ToResponse())
}

// Update PUT /api/v1/providers/:id
func (h *Handler) Update(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	input := provider.UpdateInput{
		Name:        req.Name,
		Config:      req.Config,
		Credentials: req.Credentials,
		IsActive:    req.IsActive,
	}
	if req.ProviderType != nil {
		providerType := models.ProviderType(*req.ProviderType)
		input.ProviderType = &providerType
	}

	updated, err := h.registry.Update(c.Request.Context(), userID, id, input)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, updated.ToResponse())
}

// SetDefault POST /api/v1/providers/:id/default
func (h *Handler) SetDefault(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	updated, err := h.registry.SetDefault(c.Request.Context(), userID, id)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "default provider updated", updated.ToResponse())
}

// TestConnection POST /api/v1/providers/:id/test
func (h *Handler) TestConnection(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	result, err := h.registry.TestConnection(c.Request.Context(), userID, id)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, result)
}

// Delete DELETE /api/v1/providers/:id
func (h *Handler) Delete(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.registry.Delete(c.Request.Context(), userID, id); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "provider deleted", nil)
}

func (h *Handler) identify(c *gin.Context) (userID, id uint, ok bool) {
	userID, ok = middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}

	parsed, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "invalid provider id")
		return 0, 0, false
	}
	return userID, uint(parsed), true
}
