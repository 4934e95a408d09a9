package storage

import (
	"context"
	"io"

	"github.com/aikara/image-vault/database/models"
)

// Backend 存储后端接口 - 四种变体的统一抽象。
// 所有远端调用都接收 context，调用方负责设置有界超时。
type Backend interface {
	// Upload 写入对象并返回规范路径。同一路径重复写入为覆盖语义（各实现文档说明）。
	Upload(ctx context.Context, path string, file io.Reader, size int64, contentType string) (string, error)

	// Delete 删除对象。对象不存在视为成功（清理场景的幂等要求）。
	Delete(ctx context.Context, path string) error

	// TestConnection 执行一次廉价的只读探测，不改变远端状态，不持久化结果。
	TestConnection(ctx context.Context) error

	// Kind 返回后端类型
	Kind() models.ProviderType
}

// runWithContext 在独立协程中执行阻塞调用，使不支持 context 的
// 客户端库也能被调用方超时中断。调用一旦发出即运行至完成或超时。
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
