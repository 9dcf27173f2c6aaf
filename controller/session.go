package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"eco-agent-backend/dao"
	"eco-agent-backend/middleware"
	"eco-agent-backend/model"
	"eco-agent-backend/request"
	"eco-agent-backend/response"

	"github.com/gin-gonic/gin"
)

func GetSessions(c *gin.Context) {
	sessions, err := dao.GetSessionsByOwner(c.Request.Context(), middleware.OwnerFrom(c))
	if err != nil {
		slog.Error(ErrGetSessions.Error(), "err", err)
		abort(c, http.StatusInternalServerError, ErrGetSessions)
		return
	}

	resp := response.GetSessionsResponse{
		Sessions: make([]response.SessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, response.SessionResponse{
			SessionID: s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := dao.DeleteSession(c.Request.Context(), middleware.OwnerFrom(c), sessionID); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			abort(c, http.StatusNotFound, ErrSessionNotFound)
			return
		}
		slog.Error(ErrDeleteSession.Error(), "session_id", sessionID, "err", err)
		abort(c, http.StatusInternalServerError, ErrDeleteSession)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func GetSessionMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := dao.GetSession(ctx, middleware.OwnerFrom(c), sessionID); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			abort(c, http.StatusNotFound, ErrSessionNotFound)
			return
		}
		slog.Error(ErrGetSessionMessages.Error(), "session_id", sessionID, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetSessionMessages)
		return
	}

	messages, err := dao.GetMessagesBySessionID(ctx, sessionID, 0)
	if err != nil {
		slog.Error(ErrGetSessionMessages.Error(), "session_id", sessionID, "err", err)
		abort(c, http.StatusInternalServerError, ErrGetSessionMessages)
		return
	}

	resp := response.GetSessionMessagesResponse{
		SessionID: sessionID,
		Messages:  make([]model.UIMessage, 0, len(messages)),
	}
	for _, m := range messages {
		ui, err := model.ToUIMessage(m)
		if err != nil {
			slog.Error(ErrGetSessionMessages.Error(), "msg_id", m.ID, "err", err)
			continue
		}
		resp.Messages = append(resp.Messages, ui)
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func UpdateSessionTitle(c *gin.Context) {
	var req request.UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		abort(c, http.StatusBadRequest, ErrParseRequest)
		return
	}

	sessionID := c.Param("id")
	if err := dao.UpdateSessionTitle(c.Request.Context(), middleware.OwnerFrom(c), sessionID, req.Title); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			abort(c, http.StatusNotFound, ErrSessionNotFound)
			return
		}
		slog.Error(ErrUpdateSessionTitle.Error(), "session_id", sessionID, "err", err)
		abort(c, http.StatusInternalServerError, ErrUpdateSessionTitle)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}
