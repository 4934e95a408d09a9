package validator

import (
	"net/http"
)

// allowedImageMimeTypes Allowed image types
var allowedImageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// IsAllowedContentType 声明的 content type 是否在白名单内
func IsAllowedContentType(contentType string) bool {
	return allowedImageMimeTypes[contentType]
}

// SniffImage 嗅探文件头判断真实类型，返回 (是否允许, 嗅探到的 MIME)。
// 声明的 content type 不可信，以内容为准。
func SniffImage(data []byte) (bool, string) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	mimeType := http.DetectContentType(head)
	return allowedImageMimeTypes[mimeType], mimeType
}
