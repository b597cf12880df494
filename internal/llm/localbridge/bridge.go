package localbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"CouncilChain/internal/llm"
)

// Client 通过本地脚本桥接离线托管的模型。请求以 JSON 写入标准输入，
// 脚本将模型输出写回标准输出。
type Client struct {
	execPath   string
	scriptPath string
	workingDir string
}

// NewClient 创建本地桥接客户端。
func NewClient(execPath, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定桥接脚本路径")
	}
	if execPath == "" {
		execPath = "python3"
	}
	return &Client{
		execPath:   execPath,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

// Invoke 调用外部脚本并解析输出。
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload := map[string]string{
		"system_prompt": req.SystemPrompt,
		"user_prompt":   req.UserPrompt,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.execPath, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("执行桥接脚本失败: %v, stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	return llm.ParseDecision(stdout.String())
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}

var _ llm.Client = (*Client)(nil)
