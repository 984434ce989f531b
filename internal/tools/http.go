package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
)

const httpMaxBody = 1 << 20 // 1 MiB, so a large response can't blow out the tape

// HTTPTool performs a simple GET/POST request. Host allowlisting is enforced
// by security.Wrapper before Execute ever runs.
type HTTPTool struct {
	Client *http.Client
}

func (HTTPTool) Name() security.ToolName { return security.ToolHTTP }

func (t HTTPTool) Execute(ctx context.Context, args map[string]any) (string, bool) {
	url, _ := args["url"].(string)
	method, _ := args["method"].(string)
	body, _ := args["body"].(string)
	if url == "" {
		return "url is required", true
	}
	if method == "" {
		method = http.MethodGet
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, strings.NewReader(body))
	if err != nil {
		return fmt.Sprintf("http request failed: %v", err), true
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("http request failed: %v", err), true
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxBody))
	if err != nil {
		return fmt.Sprintf("http read failed: %v", err), true
	}

	result := fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, string(data))
	if resp.StatusCode >= 400 {
		return result, true
	}
	return result, false
}

func HTTPDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolHTTP),
		Description: "Perform an HTTP request to an allowed host.",
		Parameters: paramSchema(map[string]any{
			"url":    stringProp("request URL"),
			"method": stringProp("HTTP method, defaults to GET"),
			"body":   stringProp("request body, optional"),
		}, []string{"url"}),
	}
}
