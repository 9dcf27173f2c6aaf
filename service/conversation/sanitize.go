package conversation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"eco-agent-backend/model"
)

const (
	Base64Placeholder = "[base64 omitted]"
	truncatedMarker   = "\n\n[... content truncated ...]\n\n"

	defaultMaxPartChars = 20000

	// 超过该长度且只含 base64 字符的字符串视为二进制内容
	minBase64BlobLen = 1024
)

var (
	dataURLPattern    = regexp.MustCompile(`data:[a-zA-Z0-9.+/-]+;base64,[A-Za-z0-9+/=]+`)
	base64BlobPattern = regexp.MustCompile(`^[A-Za-z0-9+/=\r\n]+$`)

	// 工具结果中固定承载图片数据的字段
	base64Keys = map[string]bool{
		"b64_json":     true,
		"image_base64": true,
		"imageBase64":  true,
		"base64":       true,
	}
)

type SanitizeOptions struct {
	MaxPartChars int
}

// Sanitize 返回适合回传给模型的消息副本，不修改入参
func Sanitize(msgs []model.UIMessage, opts SanitizeOptions) []model.UIMessage {
	maxChars := opts.MaxPartChars
	if maxChars <= 0 {
		maxChars = defaultMaxPartChars
	}

	seenToolCalls := make(map[string]bool)
	out := make([]model.UIMessage, 0, len(msgs))

	for _, msg := range msgs {
		if !validRole(msg.Role) {
			continue
		}

		parts := make([]model.Part, 0, len(msg.Parts))
		for idx, p := range msg.Parts {
			p.ProviderMetadata = nil

			switch p.Type {
			case model.PartText:
				text := strings.TrimSpace(stripDataURLs(p.Text))
				if text == "" {
					continue
				}
				p.Text = truncateMiddle(text, maxChars)
				parts = append(parts, p)

			case model.PartImage, model.PartFile:
				if p.Data != "" || strings.HasPrefix(p.URL, "data:") {
					parts = append(parts, model.Part{
						Type: model.PartText,
						Text: fmt.Sprintf("[%s omitted: %s]", p.Type, mediaTypeOrDefault(p.MediaType)),
					})
					continue
				}
				if p.URL == "" {
					continue
				}
				parts = append(parts, p)

			case model.PartToolInvocation:
				if !p.Completed() || p.ToolName == "" {
					continue
				}
				if p.ToolCallID == "" {
					p.ToolCallID = fmt.Sprintf("call_%s_%d", msg.ID, idx)
				}
				if seenToolCalls[p.ToolCallID] {
					continue
				}
				seenToolCalls[p.ToolCallID] = true

				p.Args = stripBase64JSON(p.Args)
				p.Result = stripBase64JSON(p.Result)
				if len(p.Result) > maxChars {
					p.Result = truncateJSON(p.Result, maxChars)
				}
				parts = append(parts, p)

			default:
				// reasoning 等供应商特有片段不回传
			}
		}

		if len(parts) == 0 {
			continue
		}
		msg.Parts = parts
		out = append(out, msg)
	}

	return out
}

// StripIncompleteToolCalls 持久化前剔除没有结果的工具调用和空消息
func StripIncompleteToolCalls(msgs []model.UIMessage) []model.UIMessage {
	out := make([]model.UIMessage, 0, len(msgs))
	for _, msg := range msgs {
		parts := make([]model.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			if p.Type == model.PartToolInvocation && !p.Completed() {
				continue
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		msg.Parts = parts
		out = append(out, msg)
	}
	return out
}

// CountToolCalls 统计已完成的工具调用次数
func CountToolCalls(msgs []model.UIMessage) int {
	count := 0
	for _, msg := range msgs {
		for _, p := range msg.Parts {
			if p.Completed() {
				count++
			}
		}
	}
	return count
}

func validRole(role string) bool {
	switch role {
	case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		return true
	}
	return false
}

func mediaTypeOrDefault(mediaType string) string {
	if mediaType == "" {
		return "binary"
	}
	return mediaType
}

func stripDataURLs(s string) string {
	if !strings.Contains(s, "base64,") {
		return s
	}
	return dataURLPattern.ReplaceAllString(s, Base64Placeholder)
}

func isBase64Blob(s string) bool {
	return len(s) >= minBase64BlobLen && base64BlobPattern.MatchString(s)
}

// stripBase64JSON 替换 JSON 中的 base64 内容，无改动时返回原值
func stripBase64JSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// 非 JSON 结果按纯文本处理
		s := string(raw)
		if isBase64Blob(s) {
			out, _ := json.Marshal(Base64Placeholder)
			return out
		}
		return raw
	}

	cleaned, changed := stripBase64Value("", v)
	if !changed {
		return raw
	}
	out, err := json.Marshal(cleaned)
	if err != nil {
		return raw
	}
	return out
}

func stripBase64Value(key string, v any) (any, bool) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return val, false
		}
		if base64Keys[key] || isBase64Blob(val) {
			return Base64Placeholder, true
		}
		if stripped := stripDataURLs(val); stripped != val {
			return stripped, true
		}
		return val, false
	case map[string]any:
		changed := false
		for k, item := range val {
			cleaned, c := stripBase64Value(k, item)
			if c {
				val[k] = cleaned
				changed = true
			}
		}
		return val, changed
	case []any:
		changed := false
		for i, item := range val {
			cleaned, c := stripBase64Value(key, item)
			if c {
				val[i] = cleaned
				changed = true
			}
		}
		return val, changed
	default:
		return v, false
	}
}

// truncateMiddle 保留头部 2/3 与尾部 1/3
func truncateMiddle(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	budget := maxChars - len(truncatedMarker)
	if budget <= 0 {
		return safePrefix(s, maxChars)
	}
	head := budget * 2 / 3
	tail := budget - head
	return safePrefix(s, head) + truncatedMarker + safeSuffix(s, tail)
}

// truncateJSON 过长的工具结果截断后以 JSON 字符串形式保留
func truncateJSON(raw json.RawMessage, maxChars int) json.RawMessage {
	out, err := json.Marshal(truncateMiddle(string(raw), maxChars))
	if err != nil {
		return raw
	}
	return out
}

// safePrefix 按字节截断但不切断 UTF-8 字符
func safePrefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func safeSuffix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	start := len(s) - n
	for start < len(s) && !utf8Start(s[start]) {
		start++
	}
	return s[start:]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
