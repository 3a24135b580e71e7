// Package render projects a batch result into caller-facing shapes:
// a stitched codeblock document for human and LLM consumption, and an
// indented JSON document for programmatic consumers. Both are thin
// projections of the same result; neither re-fetches anything.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"repofetch/internal/clonecache"
	"repofetch/internal/fetch"
)

// Codeblock stitches a result into one text document: a repository
// header, a numbered file list, then one fenced block per file. Error
// records render inline with their kind, so a partial failure is
// visible exactly where the file's content would have been.
func Codeblock(result *fetch.Result) string {
	var b strings.Builder

	b.WriteString("__\n")
	fmt.Fprintf(&b, "Repository: %s\n", result.Repository)
	if result.Ref != "" {
		fmt.Fprintf(&b, "Branch: %s\n", result.Ref)
	}
	b.WriteString("\n")

	b.WriteString("Files:\n")
	for i, f := range result.Files {
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, f.Path, annotation(f))
	}
	b.WriteString("\n")

	for _, f := range result.Files {
		fmt.Fprintf(&b, "`%s`%s:\n\n", f.Path, annotation(f))
		if f.Error != nil {
			fmt.Fprintf(&b, "Error [%s]: %s\n\n", f.Error.Kind, f.Error.Message)
			continue
		}
		fmt.Fprintf(&b, "```%s\n", fenceLanguage(f.Language))
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	return b.String()
}

// annotation is the parenthesized suffix for a file line: the
// selection when one was requested, or the error kind.
func annotation(f fetch.ResolvedFile) string {
	if f.Error != nil {
		return fmt.Sprintf(" (error: %s)", f.Error.Kind)
	}
	if sel := f.Selection.String(); sel != "" {
		return " (" + sel + ")"
	}
	return ""
}

// fenceLanguage defaults unknown languages to a plain text fence.
func fenceLanguage(lang string) string {
	if lang == "" {
		return "text"
	}
	return lang
}

// JSON renders the result as an indented JSON document.
func JSON(result *fetch.Result) (string, error) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CloneReport renders a cache status snapshot as text, one line per
// cached clone.
func CloneReport(report clonecache.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Clone cache: %s\n", report.Root)
	fmt.Fprintf(&b, "Total size: %s of %s (%d clones)\n",
		formatBytes(report.TotalSizeBytes), formatBytes(report.MaxTotalBytes), len(report.Clones))

	if len(report.Clones) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, c := range report.Clones {
		name := c.Repository
		if name == "" {
			// Restored from disk and not referenced yet.
			name = c.Key
		}
		var attrs []string
		if c.Ref != "" {
			attrs = append(attrs, "ref "+c.Ref)
		}
		if c.Submodules {
			attrs = append(attrs, "submodules")
		}
		fmt.Fprintf(&b, "  %s", name)
		if len(attrs) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
		}
		fmt.Fprintf(&b, "  %s, last used %s", formatBytes(c.SizeBytes), c.LastAccess.Format(time.RFC3339))
		if c.InUse {
			b.WriteString(" [in use]")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
