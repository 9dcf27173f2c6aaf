package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"eco-agent-backend/model"

	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Env 工具执行时的请求上下文
type Env struct {
	Owner     model.Owner
	SessionID string
}

// Tool 模型可调用的工具，结果保持精简以控制上下文长度
type Tool interface {
	Name() string
	Definition() llms.FunctionDefinition
	Call(ctx context.Context, env Env, args json.RawMessage) (any, error)
}

// Registry 按注册顺序向模型暴露工具
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name].Definition()
		defs = append(defs, llms.Tool{
			Type:     "function",
			Function: &def,
		})
	}
	return defs
}

// Execute 执行工具调用。工具自身的错误转换为 {"error": ...} 结果交给模型处理，
// 只有结果无法编码时才返回 error。
func (r *Registry) Execute(ctx context.Context, env Env, name, args string) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}

	raw := json.RawMessage(strings.TrimSpace(args))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	result, err := t.Call(ctx, env, raw)
	if err != nil {
		slog.Warn("Tool call failed",
			"tool", name,
			"session_id", env.SessionID,
			"err", err,
		)
		return errorResult(err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result of tool %s: %w", name, err)
	}
	return out, nil
}

func errorResult(err error) (json.RawMessage, error) {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return out, nil
}

// decodeArgs 解析并校验工具参数
func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidArgs, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// schema 构造 JSON Schema 对象
func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func artifactOwner(env Env) (userID, anonymousID *string) {
	return env.Owner.Columns()
}

// truncateText 截断返回给模型的长文本，保留 UTF-8 完整
func truncateText(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}
