// Package language maps file paths to the language tags used for
// fenced code blocks. Best-effort by extension or well-known basename;
// unknown files get an empty tag, which renders as a plain fence.
package language

import (
	"path"
	"strings"
)

var byExtension = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "jsx",
	".ts":    "typescript",
	".tsx":   "tsx",
	".go":    "go",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "bash",
	".bash":  "bash",
	".zsh":   "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".md":    "markdown",
	".rst":   "rst",
	".tf":    "hcl",
	".proto": "protobuf",
	".lua":   "lua",
	".pl":    "perl",
	".r":     "r",
	".ex":    "elixir",
	".exs":   "elixir",
	".erl":   "erlang",
	".hs":    "haskell",
	".vim":   "vim",
	".ini":   "ini",
	".cfg":   "ini",
	".txt":   "text",
}

var byBasename = map[string]string{
	"dockerfile":     "dockerfile",
	"makefile":       "makefile",
	"gnumakefile":    "makefile",
	"rakefile":       "ruby",
	"gemfile":        "ruby",
	"vagrantfile":    "ruby",
	"cmakelists.txt": "cmake",
	"go.mod":         "go-module",
	"go.sum":         "go-module",
	".gitignore":     "gitignore",
	".gitmodules":    "gitignore",
}

// Detect returns the language tag for a repo-relative path.
func Detect(p string) string {
	base := strings.ToLower(path.Base(p))
	if lang, ok := byBasename[base]; ok {
		return lang
	}
	if lang, ok := byExtension[strings.ToLower(path.Ext(base))]; ok {
		return lang
	}
	return ""
}
