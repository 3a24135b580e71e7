// Package filespec parses file specification strings of the form
// path[:lines|@bytes] and applies the resulting selection to file
// content. Parsing is pure syntax analysis: no filesystem or network
// access, so every accepted and rejected form is unit-testable.
package filespec

import (
	"bytes"
	"strconv"
	"strings"

	"repofetch/internal/errors"
)

// SelectionKind discriminates what portion of a file a spec requests.
type SelectionKind string

const (
	// SelectWhole requests the entire file
	SelectWhole SelectionKind = "whole"
	// SelectLines requests a 1-indexed, inclusive line range
	SelectLines SelectionKind = "lines"
	// SelectBytes requests a 0-indexed, inclusive byte range
	SelectBytes SelectionKind = "bytes"
)

// Selection is the requested portion of a file.
type Selection struct {
	Kind  SelectionKind `json:"kind"`
	Start int           `json:"start,omitempty"`
	End   int           `json:"end,omitempty"`
}

// WholeFile selects the entire file.
var WholeFile = Selection{Kind: SelectWhole}

// Lines selects a 1-indexed inclusive line range.
func Lines(start, end int) Selection {
	return Selection{Kind: SelectLines, Start: start, End: end}
}

// Bytes selects a 0-indexed inclusive byte range.
func Bytes(start, end int) Selection {
	return Selection{Kind: SelectBytes, Start: start, End: end}
}

// IsWhole reports whether the selection covers the entire file.
func (s Selection) IsWhole() bool {
	return s.Kind == SelectWhole || s.Kind == ""
}

// String renders the selection for status output and file listings.
func (s Selection) String() string {
	switch s.Kind {
	case SelectLines:
		if s.Start == s.End {
			return "line " + strconv.Itoa(s.Start)
		}
		return "lines " + strconv.Itoa(s.Start) + "-" + strconv.Itoa(s.End)
	case SelectBytes:
		return "bytes " + strconv.Itoa(s.Start) + "-" + strconv.Itoa(s.End)
	default:
		return ""
	}
}

// FileSpec is a parsed file specification: a repo-relative path plus
// the selection requested for it. Raw echoes the original spec string
// so error records can name exactly what the caller asked for.
type FileSpec struct {
	Path      string    `json:"path"`
	Selection Selection `json:"selection"`
	Raw       string    `json:"raw"`
}

// Parse parses a file specification string. Accepted grammar:
//
//	<path>                  whole file
//	<path>:<line>           single line (1-indexed)
//	<path>:<start>-<end>    line range, inclusive
//	<path>:<start>:<end>    line range, colon form
//	<path>@<start>-<end>    byte range, 0-indexed inclusive
//	<path>@<start>:<end>    byte range, colon form
//
// The byte form requires an explicit range. At most one of ':'/'@' may
// appear; an empty path, a non-numeric bound, or end < start all fail.
func Parse(spec string) (FileSpec, error) {
	fail := func(msg string) (FileSpec, error) {
		return FileSpec{}, errors.New(errors.ParseError, msg).WithPath(spec)
	}

	if strings.TrimSpace(spec) == "" {
		return fail("empty file spec")
	}
	if strings.ContainsRune(spec, '@') && strings.ContainsRune(spec, ':') {
		return fail("spec mixes ':' and '@' delimiters")
	}

	sep := strings.IndexAny(spec, ":@")
	if sep < 0 {
		return FileSpec{Path: spec, Selection: WholeFile, Raw: spec}, nil
	}

	path, rangePart := spec[:sep], spec[sep+1:]
	if path == "" {
		return fail("empty path before range")
	}

	byteForm := spec[sep] == '@'
	startStr, endStr, single, ok := splitRange(rangePart)
	if !ok {
		return fail("malformed range " + strconv.Quote(rangePart))
	}
	if single && byteForm {
		return fail("byte form requires an explicit range")
	}

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return fail("non-numeric range start " + strconv.Quote(startStr))
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return fail("non-numeric range end " + strconv.Quote(endStr))
	}
	if end < start {
		return fail("range end before start")
	}

	if byteForm {
		if start < 0 {
			return fail("byte ranges are 0-indexed; start below 0")
		}
		return FileSpec{Path: path, Selection: Bytes(start, end), Raw: spec}, nil
	}
	if start < 1 {
		return fail("line ranges are 1-indexed; start below 1")
	}
	return FileSpec{Path: path, Selection: Lines(start, end), Raw: spec}, nil
}

// splitRange splits the text after the delimiter into its start and
// end bounds. A lone number means start == end (single is true); the
// colon and dash separators are synonymous.
func splitRange(s string) (startStr, endStr string, single, ok bool) {
	for _, sep := range []string{":", "-"} {
		if strings.Contains(s, sep) {
			parts := strings.Split(s, sep)
			if len(parts) != 2 {
				return "", "", false, false
			}
			return parts[0], parts[1], false, true
		}
	}
	if s == "" {
		return "", "", false, false
	}
	return s, s, true, true
}

// Apply slices content according to the selection.
//
// Byte ranges operate on the raw byte stream; an end past the last
// byte clamps to it, a start past the last byte is RangeOutOfBounds.
// Line ranges operate on newline-split content with the same clamp
// rule for the end bound: over-specifying the end is a harmless caller
// mistake, over-specifying the start is an error.
func (s Selection) Apply(content []byte) ([]byte, error) {
	switch s.Kind {
	case SelectWhole, "":
		return content, nil

	case SelectBytes:
		if s.Start >= len(content) {
			return nil, errors.Newf(errors.RangeOutOfBounds,
				"byte %d beyond file of %d bytes", s.Start, len(content))
		}
		end := s.End
		if end >= len(content) {
			end = len(content) - 1
		}
		return content[s.Start : end+1], nil

	case SelectLines:
		lines := bytes.Split(content, []byte("\n"))
		// A trailing newline produces one empty trailing element, not
		// an extra line.
		count := len(lines)
		if count > 0 && len(lines[count-1]) == 0 && bytes.HasSuffix(content, []byte("\n")) {
			count--
		}
		if s.Start > count {
			return nil, errors.Newf(errors.RangeOutOfBounds,
				"line %d beyond file of %d lines", s.Start, count)
		}
		end := s.End
		if end > count {
			end = count
		}
		return bytes.Join(lines[s.Start-1:end], []byte("\n")), nil

	default:
		return nil, errors.Newf(errors.ParseError, "unknown selection kind %q", s.Kind)
	}
}
