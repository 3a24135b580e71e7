package mcp

import (
	"encoding/json"
	"fmt"

	"repofetch/internal/errors"
)

// Tool describes one agent-callable tool.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func (s *Server) registerTools() {
	s.tools = map[string]ToolHandler{
		"fetch_files":      s.toolFetchFiles,
		"get_snippets":     s.toolGetSnippets,
		"get_files_bulk":   s.toolGetFilesBulk,
		"resolve_patterns": s.toolResolvePatterns,
		"clone_status":     s.toolCloneStatus,
		"cleanup_clone":    s.toolCleanupClone,
	}
}

// toolResult wraps text in the MCP tool-result content shape.
func toolResult(text string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
}

// toolError renders a domain failure as an isError tool result so the
// calling agent sees the stable kind and message. Protocol errors are
// handled upstream; everything a tool returns lands here.
func toolError(err error) map[string]interface{} {
	data, merr := json.Marshal(errors.AsError(err))
	if merr != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}

	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(data)},
		},
		"isError": true,
	}
}

// repositoryProperty is shared by every tool that names a repository.
func repositoryProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Repository identity: repo, org/repo, or org/repo@ref; configured aliases are accepted",
	}
}

func stringArrayProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

// GetToolDefinitions returns the fixed tool catalog in display order.
func (s *Server) GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: "fetch_files",
			Description: "Fetch files from a repository by glob pattern or literal path and return one formatted, " +
				"language-tagged code block. Literal paths accept line ranges (main.py:10-40) and byte ranges " +
				"(data.bin@0-1023). Failed files are reported inline; the batch never aborts on a single file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": repositoryProperty(),
					"files":      stringArrayProperty("Glob patterns (src/**/*.py) or literal paths with optional ranges"),
					"mode": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"api", "clone", "auto"},
						"default":     "auto",
						"description": "Retrieval mode: per-file remote fetches, a cached shallow clone, or clone with automatic fallback",
					},
					"excludes": stringArrayProperty("Extra glob patterns excluded from pattern matches"),
					"submodules": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Clone with submodules (clone and auto modes)",
					},
					"refresh": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Discard any cached clone and fetch fresh",
					},
				},
				"required": []string{"repository", "files"},
			},
		},
		{
			Name: "get_snippets",
			Description: "Fetch targeted line or byte ranges from specific files and return one formatted code block. " +
				"Always fetches per-file over the remote API, so nothing is cloned. Use fetch_files for whole files " +
				"or glob patterns.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": repositoryProperty(),
					"snippets":   stringArrayProperty("Range specs: path:12-80 (lines, 1-indexed), path:7 (one line), path@0-1023 (bytes, 0-indexed)"),
				},
				"required": []string{"repository", "snippets"},
			},
		},
		{
			Name: "get_files_bulk",
			Description: "Fetch files like fetch_files but return the structured record set as JSON: one record per " +
				"request with content, size, checksum, language, and any per-file error kind.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": repositoryProperty(),
					"files":      stringArrayProperty("Glob patterns or literal paths with optional ranges"),
					"mode": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"api", "clone", "auto"},
						"default":     "auto",
						"description": "Retrieval mode",
					},
					"excludes": stringArrayProperty("Extra glob patterns excluded from pattern matches"),
					"submodules": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Clone with submodules (clone and auto modes)",
					},
					"refresh": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Discard any cached clone and fetch fresh",
					},
				},
				"required": []string{"repository", "files"},
			},
		},
		{
			Name: "resolve_patterns",
			Description: "Resolve glob patterns against a repository's file tree without fetching content. Returns " +
				"the matched paths sorted and deduplicated, as a cheap dry run before fetch_files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": repositoryProperty(),
					"patterns":   stringArrayProperty("Glob patterns to resolve"),
					"excludes":   stringArrayProperty("Extra glob patterns to exclude"),
				},
				"required": []string{"repository", "patterns"},
			},
		},
		{
			Name: "clone_status",
			Description: "Report the clone cache: every cached clone with its size, creation and last-access times, " +
				"and whether a fetch currently holds it, plus aggregate usage against the configured budget.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name: "cleanup_clone",
			Description: "Remove a repository's cached clones (both the plain and the submodule variant). Clones " +
				"held by an in-flight fetch are removed once released.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": repositoryProperty(),
				},
				"required": []string{"repository"},
			},
		},
	}
}
