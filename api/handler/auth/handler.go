package auth

import (
	"net/http"

	"github.com/aikara/image-vault/api/common"
	authSvc "github.com/aikara/image-vault/internal/auth"
	"github.com/gin-gonic/gin"
)

// Handler 认证接口
type Handler struct {
	service *authSvc.Service
}

// NewHandler 创建认证处理器
func NewHandler(service *authSvc.Service) *Handler {
	return &Handler{service: service}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, result)
}

// Register POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
	})
}
