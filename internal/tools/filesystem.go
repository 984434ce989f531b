package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
)

// ReadFileTool reads a file's contents.
type ReadFileTool struct{}

func (ReadFileTool) Name() security.ToolName { return security.ToolReadFile }

func (ReadFileTool) Execute(_ context.Context, args map[string]any) (string, bool) {
	path, _ := args["path"].(string)
	if path == "" {
		return "path is required", true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("read_file failed: %v", err), true
	}
	return string(data), false
}

func ReadFileDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolReadFile),
		Description: "Read the contents of a file at the given path.",
		Parameters:  paramSchema(map[string]any{"path": stringProp("absolute or relative path to read")}, []string{"path"}),
	}
}

// WriteFileTool overwrites a file with content, creating parent directories.
type WriteFileTool struct{}

func (WriteFileTool) Name() security.ToolName { return security.ToolWriteFile }

func (WriteFileTool) Execute(_ context.Context, args map[string]any) (string, bool) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return "path is required", true
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("write_file failed: %v", err), true
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("write_file failed: %v", err), true
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), false
}

func WriteFileDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolWriteFile),
		Description: "Overwrite a file with the given content, creating it if necessary.",
		Parameters: paramSchema(map[string]any{
			"path":    stringProp("path to write"),
			"content": stringProp("full file content"),
		}, []string{"path", "content"}),
	}
}

// EditFileTool replaces the first occurrence of old_text with new_text.
type EditFileTool struct{}

func (EditFileTool) Name() security.ToolName { return security.ToolEditFile }

func (EditFileTool) Execute(_ context.Context, args map[string]any) (string, bool) {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	if path == "" || oldText == "" {
		return "path and old_text are required", true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("edit_file failed: %v", err), true
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return "old_text not found in file", true
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Sprintf("edit_file failed: %v", err), true
	}
	return fmt.Sprintf("edited %s", path), false
}

func EditFileDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolEditFile),
		Description: "Replace the first occurrence of old_text with new_text in a file.",
		Parameters: paramSchema(map[string]any{
			"path":     stringProp("path to edit"),
			"old_text": stringProp("exact text to replace"),
			"new_text": stringProp("replacement text"),
		}, []string{"path", "old_text", "new_text"}),
	}
}

// ListFilesTool lists entries in a directory, non-recursively.
type ListFilesTool struct{}

func (ListFilesTool) Name() security.ToolName { return security.ToolListFiles }

func (ListFilesTool) Execute(_ context.Context, args map[string]any) (string, bool) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Sprintf("list_files failed: %v", err), true
	}
	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name())
		}
	}
	return b.String(), false
}

func ListFilesDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolListFiles),
		Description: "List the entries of a directory, non-recursively.",
		Parameters:  paramSchema(map[string]any{"path": stringProp("directory to list, defaults to \".\"")}, nil),
	}
}

// SearchTool greps for a substring across files under a root path.
type SearchTool struct {
	MaxMatches int
}

func (SearchTool) Name() security.ToolName { return security.ToolSearch }

func (t SearchTool) Execute(_ context.Context, args map[string]any) (string, bool) {
	path, _ := args["path"].(string)
	query, _ := args["query"].(string)
	if path == "" {
		path = "."
	}
	if query == "" {
		return "query is required", true
	}
	max := t.MaxMatches
	if max <= 0 {
		max = 200
	}

	var b strings.Builder
	count := 0
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || count >= max {
			return nil
		}
		f, ferr := os.Open(p)
		if ferr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), query) {
				fmt.Fprintf(&b, "%s:%d: %s\n", p, line, scanner.Text())
				count++
				if count >= max {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("search failed: %v", err), true
	}
	if count == 0 {
		return "no matches", false
	}
	return b.String(), false
}

func SearchDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolSearch),
		Description: "Search for a substring across files under a root path.",
		Parameters: paramSchema(map[string]any{
			"path":  stringProp("root directory to search, defaults to \".\""),
			"query": stringProp("substring to search for"),
		}, []string{"query"}),
	}
}
