package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"eco-agent-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Emitter 向客户端推送流式事件
type Emitter interface {
	Emit(event string, data any) error
}

// GinSSEEmitter 基于 Gin 的 SSE 推送
type GinSSEEmitter struct {
	Ctx *gin.Context
}

var _ Emitter = &GinSSEEmitter{}

func NewGinSSEEmitter(c *gin.Context) *GinSSEEmitter {
	utils.SetSSEHeaders(c)
	return &GinSSEEmitter{Ctx: c}
}

func (e *GinSSEEmitter) Emit(event string, data any) error {
	if err := e.Ctx.Request.Context().Err(); err != nil {
		return err
	}
	utils.SendSSEMessage(e.Ctx, event, data)
	return nil
}

// WSEmitter websocket 推送，每个事件为一条 {"event": ..., "data": ...} 文本帧
type WSEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Emitter = &WSEmitter{}

func NewWSEmitter(conn *websocket.Conn) *WSEmitter {
	return &WSEmitter{conn: conn}
}

type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (e *WSEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(wsFrame{Event: event, Data: data})
}

// streamHandler 把模型的流式文本转发为 text-delta 事件，并记录本步的完整文本
type streamHandler struct {
	emitter Emitter
	text    strings.Builder
}

func newStreamHandler(emitter Emitter) *streamHandler {
	return &streamHandler{emitter: emitter}
}

func (h *streamHandler) HandleStreamingFunc(ctx context.Context, chunk []byte) error {
	// openai 客户端会把工具调用以 JSON 数组形式推入回调
	if isToolCallChunk(chunk) {
		return nil
	}
	if len(chunk) == 0 {
		return nil
	}
	h.text.Write(chunk)
	return h.emitter.Emit(utils.EventTextDelta, gin.H{"delta": string(chunk)})
}

// Take 取出并清空已累积的文本
func (h *streamHandler) Take() string {
	s := h.text.String()
	h.text.Reset()
	return s
}

func isToolCallChunk(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) < 2 || trimmed[0] != '[' {
		return false
	}
	var calls []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &calls); err != nil || len(calls) == 0 {
		return false
	}
	_, ok := calls[0]["function"]
	return ok
}
