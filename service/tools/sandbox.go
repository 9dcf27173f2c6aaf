package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/utils"

	"github.com/tmc/langchaingo/llms"
)

const (
	ToolExecuteCode = "execute_code"

	sandboxStateStarted = "started"
	sandboxPollInterval = time.Second

	maxCodeOutputChars = 8000
)

// interpreters 代码先写入文件再执行，避免命令行转义问题
var interpreters = map[string]struct {
	file    string
	command string
}{
	"python":     {file: "/tmp/main.py", command: "python3 /tmp/main.py"},
	"javascript": {file: "/tmp/main.js", command: "node /tmp/main.js"},
	"typescript": {file: "/tmp/main.ts", command: "npx --yes tsx /tmp/main.ts"},
}

// DaytonaClient Daytona 沙箱 REST 接口的最小封装
type DaytonaClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

func NewDaytonaClient(cfg config.SandboxConfig) *DaytonaClient {
	return &DaytonaClient{
		httpClient: utils.NewHTTPClient(utils.WithTimeout(cfg.Timeout + 30*time.Second)),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
}

type sandboxInfo struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type ExecuteResult struct {
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Run 创建临时沙箱执行代码，结束后删除沙箱
func (d *DaytonaClient) Run(ctx context.Context, language, code string) (*ExecuteResult, error) {
	interp, ok := interpreters[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout+20*time.Second)
	defer cancel()

	var sandbox sandboxInfo
	if err := d.do(ctx, http.MethodPost, "/sandbox", map[string]any{
		"language":         language,
		"autoStopInterval": 15,
	}, &sandbox); err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := d.do(cleanupCtx, http.MethodDelete, "/sandbox/"+sandbox.ID+"?force=true", nil, nil); err != nil {
			slog.Warn("Failed to delete sandbox", "sandbox_id", sandbox.ID, "err", err)
		}
	}()

	if err := d.waitStarted(ctx, sandbox); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(code))
	command := fmt.Sprintf("sh -c 'echo %s | base64 -d > %s && %s'", encoded, interp.file, interp.command)

	var resp struct {
		ExitCode int    `json:"exitCode"`
		Result   string `json:"result"`
	}
	if err := d.do(ctx, http.MethodPost, "/toolbox/"+sandbox.ID+"/toolbox/process/execute", map[string]any{
		"command": command,
		"timeout": int(d.timeout.Seconds()),
	}, &resp); err != nil {
		return nil, fmt.Errorf("failed to execute code: %w", err)
	}

	output, truncated := truncateText(resp.Result, maxCodeOutputChars)
	return &ExecuteResult{
		ExitCode:  resp.ExitCode,
		Output:    output,
		Truncated: truncated,
	}, nil
}

func (d *DaytonaClient) waitStarted(ctx context.Context, sandbox sandboxInfo) error {
	for sandbox.State != sandboxStateStarted {
		if sandbox.State == "error" || sandbox.State == "build_failed" {
			return fmt.Errorf("sandbox %s failed to start: %s", sandbox.ID, sandbox.State)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for sandbox %s: %w", sandbox.ID, ctx.Err())
		case <-time.After(sandboxPollInterval):
		}
		if err := d.do(ctx, http.MethodGet, "/sandbox/"+sandbox.ID, nil, &sandbox); err != nil {
			return fmt.Errorf("failed to get sandbox: %w", err)
		}
	}
	return nil
}

func (d *DaytonaClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := truncateText(string(data), 300)
		return fmt.Errorf("daytona returned status %d: %s", resp.StatusCode, msg)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// CodeRunner 执行代码的沙箱
type CodeRunner interface {
	Run(ctx context.Context, language, code string) (*ExecuteResult, error)
}

type ExecuteCodeTool struct {
	runner          CodeRunner
	defaultLanguage string
}

var _ Tool = &ExecuteCodeTool{}

func NewExecuteCodeTool(runner CodeRunner, defaultLanguage string) *ExecuteCodeTool {
	if defaultLanguage == "" {
		defaultLanguage = "python"
	}
	return &ExecuteCodeTool{runner: runner, defaultLanguage: defaultLanguage}
}

type executeCodeArgs struct {
	Code     string `json:"code" validate:"required,max=20000"`
	Language string `json:"language" validate:"omitempty,oneof=python javascript typescript"`
}

func (t *ExecuteCodeTool) Name() string {
	return ToolExecuteCode
}

func (t *ExecuteCodeTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name: ToolExecuteCode,
		Description: "Run code in an isolated sandbox for calculations or data processing. " +
			"Print the values you need; only stdout and stderr are returned. No network access to internal systems.",
		Parameters: schema(map[string]any{
			"code":     stringProp("Complete program to run."),
			"language": enumProp("Programming language, python by default.", "python", "javascript", "typescript"),
		}, "code"),
	}
}

func (t *ExecuteCodeTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	var args executeCodeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Language == "" {
		args.Language = t.defaultLanguage
	}
	return t.runner.Run(ctx, args.Language, args.Code)
}
