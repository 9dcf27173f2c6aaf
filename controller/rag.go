package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"eco-agent-backend/dao"
	"eco-agent-backend/middleware"
	"eco-agent-backend/request"
	"eco-agent-backend/response"
	"eco-agent-backend/service/rag"
	"eco-agent-backend/service/storage"
	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
)

// RAGQuery 直接检索规划文档。带 session_id 时计入该会话的检索额度并保存上下文
func RAGQuery(c *gin.Context) {
	var req request.RAGQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		abort(c, http.StatusBadRequest, ErrParseRequest)
		return
	}

	if req.SessionID != "" {
		_, _, err := dao.GetOrCreateSession(c.Request.Context(), middleware.OwnerFrom(c), req.SessionID, "")
		if err != nil {
			if errors.Is(err, dao.ErrSessionOwner) {
				abort(c, http.StatusNotFound, ErrSessionNotFound)
				return
			}
			slog.Error(ErrSearchDocuments.Error(), "err", err)
			abort(c, http.StatusInternalServerError, ErrSearchDocuments)
			return
		}
	}

	compress := deps.CompressByDefault
	if req.Compress != nil {
		compress = *req.Compress
	}

	result, err := deps.Searcher.Search(c.Request.Context(), rag.SearchRequest{
		SessionID: req.SessionID,
		Query:     req.Query,
		TopK:      req.TopK,
		Compress:  compress,
	})
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrQuotaExceeded):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{
				Msg:      ErrQuotaExceeded.Error(),
				Category: string(utils.CategoryRateLimit),
			})
		case errors.Is(err, rag.ErrEmptyQuery):
			abort(c, http.StatusBadRequest, ErrParseRequest)
		default:
			slog.Error(ErrSearchDocuments.Error(), "session_id", req.SessionID, "err", err)
			category := utils.ClassifyError(err)
			c.AbortWithStatusJSON(category.StatusCode(), response.Response{
				Msg:      ErrSearchDocuments.Error(),
				Category: string(category),
			})
		}
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.RAGQueryResponse{
			ContextID: result.ContextID,
			Summary:   result.Summary,
			Sources:   result.Sources,
			Chunks:    result.Chunks,
			CallCount: result.CallCount,
		},
	})
}

// GetSourceLink 为引用的 PDF 生成临时下载链接
func GetSourceLink(c *gin.Context) {
	key := c.Query("key")
	url, expiresAt, err := deps.Presigner.PresignGet(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			abort(c, http.StatusBadRequest, ErrInvalidKey)
			return
		}
		slog.Error(ErrGetPreSignedURL.Error(), "key", key, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetPreSignedURL)
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.SourceLinkResponse{
			URL:       url,
			ExpiresAt: expiresAt,
		},
	})
}
