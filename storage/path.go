package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeneratePath 生成确定性分层存储路径：
//
//	user_{id}/{YYYY}/{MM}/{YYYYMMDD_HHMMSS}_{random8}{ext}
//
// 时间戳加随机后缀保证同一用户并发上传无需加锁也不会碰撞。
func GeneratePath(userID uint, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))

	timestamp := now.Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	return fmt.Sprintf("user_%d/%d/%02d/%s_%s%s",
		userID, now.Year(), int(now.Month()), timestamp, suffix, ext)
}
