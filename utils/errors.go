package utils

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type ErrorCategory string

const (
	CategoryRateLimit          ErrorCategory = "rate_limit"
	CategoryPaymentRequired    ErrorCategory = "payment_required"
	CategoryModelCompatibility ErrorCategory = "model_compatibility"
	CategoryFailed             ErrorCategory = "failed"
)

// StatusCode 错误类别对应的 HTTP 状态码
func (c ErrorCategory) StatusCode() int {
	switch c {
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryPaymentRequired:
		return http.StatusPaymentRequired
	case CategoryModelCompatibility:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CategorizedError 携带类别的错误，发给客户端的消息不包含上游细节
type CategorizedError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *CategorizedError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func NewCategorizedError(category ErrorCategory, message string, err error) *CategorizedError {
	return &CategorizedError{Category: category, Message: message, Err: err}
}

var (
	rateLimitMarkers = []string{"status code: 429", "rate limit", "rate_limit", "too many requests"}
	paymentMarkers   = []string{"status code: 402", "insufficient_quota", "billing", "payment required"}
	modelMarkers     = []string{
		"model_not_found", "does not exist", "not supported", "unsupported",
		"invalid model", "does not support tools", "context_length_exceeded",
	}
)

// ClassifyError 把模型供应商返回的错误归入固定类别
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if c := classifyStatus(apiErr.HTTPStatusCode); c != "" {
			return c
		}
		if apiErr.Code != nil {
			if code, ok := apiErr.Code.(string); ok {
				if c := classifyMessage(code); c != "" {
					return c
				}
			}
		}
		if c := classifyMessage(apiErr.Message); c != "" {
			return c
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if c := classifyStatus(reqErr.HTTPStatusCode); c != "" {
			return c
		}
	}

	if c := classifyMessage(err.Error()); c != "" {
		return c
	}
	return CategoryFailed
}

func classifyStatus(status int) ErrorCategory {
	switch status {
	case http.StatusTooManyRequests:
		return CategoryRateLimit
	case http.StatusPaymentRequired:
		return CategoryPaymentRequired
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return CategoryModelCompatibility
	}
	return ""
}

func classifyMessage(msg string) ErrorCategory {
	msg = strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return CategoryRateLimit
		}
	}
	for _, m := range paymentMarkers {
		if strings.Contains(msg, m) {
			return CategoryPaymentRequired
		}
	}
	for _, m := range modelMarkers {
		if strings.Contains(msg, m) {
			return CategoryModelCompatibility
		}
	}
	return ""
}

// UserMessage 返回给客户端的提示
func UserMessage(category ErrorCategory) string {
	switch category {
	case CategoryRateLimit:
		return "The model provider is rate limiting requests. Please retry in a moment."
	case CategoryPaymentRequired:
		return "The model provider rejected the request because the account quota is exhausted."
	case CategoryModelCompatibility:
		return "The selected model cannot handle this request."
	default:
		return "The request failed. Please try again."
	}
}
