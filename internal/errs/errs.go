package errs

import (
	"errors"
	"fmt"
)

// Kind 错误分类，API 层据此映射 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindEncryption
	KindDecryption
	KindProviderConnection
	KindUnsupportedFormat
)

// String 返回分类名称
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindEncryption:
		return "encryption_error"
	case KindDecryption:
		return "decryption_error"
	case KindProviderConnection:
		return "provider_connection_error"
	case KindUnsupportedFormat:
		return "unsupported_format"
	default:
		return "internal_error"
	}
}

// Error 带分类的领域错误
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind 返回错误分类
func (e *Error) Kind() Kind { return e.kind }

// Message 返回对外安全的消息（不含底层错误串）
func (e *Error) Message() string { return e.msg }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, err: cause}
}

// Validation 输入不合法，调用方可修正
func Validation(msg string) *Error { return newError(KindValidation, msg, nil) }

// NotFound 对象不存在或不属于当前用户
func NotFound(msg string) *Error { return newError(KindNotFound, msg, nil) }

// Conflict 状态冲突（默认提供者竞争失败、删除被引用约束阻止等）
func Conflict(msg string) *Error { return newError(KindConflict, msg, nil) }

// Encryption 凭据加密失败
func Encryption(msg string, cause error) *Error { return newError(KindEncryption, msg, cause) }

// Decryption 凭据解密失败（密钥轮换、密文损坏）
func Decryption(msg string, cause error) *Error { return newError(KindDecryption, msg, cause) }

// ProviderConnection 远端存储不可达或拒绝凭据
func ProviderConnection(msg string, cause error) *Error {
	return newError(KindProviderConnection, msg, cause)
}

// UnsupportedFormat 图片解码失败
func UnsupportedFormat(msg string, cause error) *Error {
	return newError(KindUnsupportedFormat, msg, cause)
}

// Internal 未预期错误，对外仅暴露通用消息
func Internal(msg string, cause error) *Error { return newError(KindInternal, msg, cause) }

// KindOf 提取错误分类，非领域错误一律视为 internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindInternal
}

// MessageOf 提取对外安全消息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return "internal server error"
}

// Is 判断错误是否属于某个分类
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
