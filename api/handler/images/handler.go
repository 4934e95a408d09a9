package images

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/aikara/image-vault/api/common"
	"github.com/aikara/image-vault/api/middleware"
	imageSvc "github.com/aikara/image-vault/internal/services/image"
	"github.com/gin-gonic/gin"
)

// Handler 图片接口
type Handler struct {
	service *imageSvc.Service
}

// NewHandler 创建图片处理器
func NewHandler(service *imageSvc.Service) *Handler {
	return &Handler{service: service}
}

// Upload POST /api/v1/images/upload (single file)
func (h *Handler) Upload(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "missing file field")
		return
	}

	input, err := h.inputFromFile(c, fileHeader)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	uploaded, err := h.service.Upload(c.Request.Context(), userID, *input)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, uploaded)
}

// UploadBatch POST /api/v1/images/uploads (multiple files)
func (h *Handler) UploadBatch(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}

	inputs := make([]imageSvc.UploadInput, 0, len(files))
	for _, fileHeader := range files {
		input, err := h.inputFromFile(c, fileHeader)
		if err != nil {
			common.RespondError(c, http.StatusBadRequest, err.Error())
			return
		}
		inputs = append(inputs, *input)
	}

	results, err := h.service.UploadBatch(c.Request.Context(), userID, inputs)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	type itemResponse struct {
		Filename string      `json:"filename"`
		Status   string      `json:"status"`
		Error    string      `json:"error,omitempty"`
		Image    interface{} `json:"image,omitempty"`
	}
	items := make([]itemResponse, 0, len(results))
	for _, result := range results {
		item := itemResponse{Filename: result.Filename}
		if result.Err != nil {
			item.Status = "error"
			item.Error = result.Err.Error()
		} else {
			item.Status = "success"
			item.Image = result.Image
		}
		items = append(items, item)
	}
	common.RespondSuccess(c, items)
}

// List GET /api/v1/images
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	images, total, err := h.service.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{
		"images":    images,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get GET /api/v1/images/:id
func (h *Handler) Get(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	image, err := h.service.Get(c.Request.Context(), userID, id)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, image)
}

type updateRequest struct {
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
}

// Update PATCH /api/v1/images/:id
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

	updated, err := h.service.UpdateTagsAndMetadata(c.Request.Context(), userID, id, req.Tags, req.Metadata)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, updated)
}

// Delete DELETE /api/v1/images/:id
func (h *Handler) Delete(c *gin.Context) {
	userID, id, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "image deleted", nil)
}

// Stats GET /api/v1/images/stats
func (h *Handler) Stats(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), userID)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondSuccess(c, stats)
}

// inputFromFile 读取 multipart 文件并组装上传输入
func (h *Handler) inputFromFile(c *gin.Context, fileHeader *multipart.FileHeader) (*imageSvc.UploadInput, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	input := &imageSvc.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		Optimize:    c.DefaultPostForm("optimize", "true") != "false",
	}

	if raw := c.PostForm("provider_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			// 静默回落到默认提供者会把文件传错地方，必须报错
			return nil, fmt.Errorf("invalid provider_id: %q", raw)
		}
		providerID := uint(parsed)
		input.ProviderID = &providerID
	}
	if raw := c.PostForm("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				input.Tags = append(input.Tags, trimmed)
			}
		}
	}
	return input, nil
}

func (h *Handler) identify(c *gin.Context) (userID, id uint, ok bool) {
	userID, ok = middleware.CurrentUserID(c)
	if !ok {
		common.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}

	parsed, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "invalid image id")
		return 0, 0, false
	}
	return userID, uint(parsed), true
}
