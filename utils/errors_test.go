package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"openai 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, CategoryRateLimit},
		{"openai 402", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: http.StatusPaymentRequired}), CategoryPaymentRequired},
		{"openai quota code", &openai.APIError{HTTPStatusCode: http.StatusForbidden, Code: "insufficient_quota"}, CategoryPaymentRequired},
		{"openai 400", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad"}, CategoryModelCompatibility},
		{"request error", &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests, Err: errors.New("x")}, CategoryRateLimit},
		{"langchaingo status text", errors.New("API returned unexpected status code: 429: Rate limit reached"), CategoryRateLimit},
		{"model text", errors.New("this model does not support tools"), CategoryModelCompatibility},
		{"categorized", NewCategorizedError(CategoryPaymentRequired, "quota", nil), CategoryPaymentRequired},
		{"other", errors.New("connection reset by peer"), CategoryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorCategoryStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, CategoryRateLimit.StatusCode())
	assert.Equal(t, http.StatusPaymentRequired, CategoryPaymentRequired.StatusCode())
	assert.Equal(t, http.StatusBadRequest, CategoryModelCompatibility.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, CategoryFailed.StatusCode())
}
