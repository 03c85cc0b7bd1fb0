package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind 对生成失败进行分类。
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindNetwork   ErrorKind = "network"
	KindMalformed ErrorKind = "malformed_response"
	KindUpstream  ErrorKind = "upstream"
)

// 可用 errors.Is 判断的哨兵错误。
var (
	ErrTimeout   = errors.New("generation timed out")
	ErrAuth      = errors.New("generation backend rejected credentials")
	ErrRateLimit = errors.New("generation backend rate limited the request")
)

// GenerationError 是生成后端调用失败时返回的错误。
type GenerationError struct {
	Provider Provider
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s generation failed (%s, status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s generation failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrTimeout) 等判断按 Kind 生效。
func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRateLimit:
		return e.Kind == KindRateLimit
	}
	return false
}

// classifyTransportError 把 http.Client.Do 的错误归类为超时或网络错误。
func classifyTransportError(ctx context.Context, provider Provider, err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &GenerationError{Provider: provider, Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GenerationError{Provider: provider, Kind: KindTimeout, Err: err}
	}
	return &GenerationError{Provider: provider, Kind: KindNetwork, Err: err}
}

// classifyStatus 把非 200 状态码归类。
func classifyStatus(provider Provider, status int, body string) *GenerationError {
	kind := KindUpstream
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	}
	return &GenerationError{Provider: provider, Kind: kind, Status: status, Err: errors.New(body)}
}
