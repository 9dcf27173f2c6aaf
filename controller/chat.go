package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"eco-agent-backend/config"
	"eco-agent-backend/middleware"
	"eco-agent-backend/request"
	"eco-agent-backend/response"
	"eco-agent-backend/service/chat"
	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return originAllowed(r.Header.Get("Origin"))
	},
}

// AgentChat 以 SSE 推送一轮对话
func AgentChat(c *gin.Context) {
	emitter := chat.NewGinSSEEmitter(c)

	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		_ = emitter.Emit(utils.EventError, gin.H{"category": utils.CategoryFailed, "message": ErrParseRequest.Error()})
		_ = emitter.Emit(utils.EventFinish, gin.H{"error": true})
		return
	}

	ctx, cancel := turnContext(c.Request.Context())
	defer cancel()

	if err := deps.Chat.HandleTurn(ctx, middleware.OwnerFrom(c), req, emitter); err != nil {
		logTurnError(req.SessionID, err)
		chat.EmitError(emitter, err)
	}
}

// AgentChatWS websocket 连接上依次处理多轮对话，每条文本帧是一个 ChatRequest
func AgentChatWS(c *gin.Context) {
	owner := middleware.OwnerFrom(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error(ErrUpgradeProtocol.Error(), "err", err)
		return
	}
	defer conn.Close()

	emitter := chat.NewWSEmitter(conn)
	for {
		var req request.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("Websocket closed", "err", err)
			}
			return
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			slog.Error(ErrParseRequest.Error(), "err", err)
			_ = emitter.Emit(utils.EventError, gin.H{"category": utils.CategoryFailed, "message": ErrParseRequest.Error()})
			_ = emitter.Emit(utils.EventFinish, gin.H{"error": true})
			continue
		}

		ctx, cancel := turnContext(c.Request.Context())
		if err := deps.Chat.HandleTurn(ctx, owner, req, emitter); err != nil {
			logTurnError(req.SessionID, err)
			chat.EmitError(emitter, err)
		}
		cancel()
	}
}

// turnContext 单轮对话不超过平台允许的最长请求时间
func turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	if d := config.Cfg.Server.MaxRequestDuration; d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

func logTurnError(sessionID string, err error) {
	if errors.Is(err, context.Canceled) {
		slog.Info("Chat turn canceled by client", "session_id", sessionID)
		return
	}
	slog.Error(ErrCallAgent.Error(), "session_id", sessionID, "err", err)
}

func originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range config.Cfg.Server.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// abort 统一的错误响应
func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, response.Response{
		Msg: err.Error(),
	})
}
