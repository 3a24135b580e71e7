package filespec

import (
	"bytes"
	"strings"
	"testing"

	"repofetch/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    FileSpec
		wantErr bool
	}{
		{
			name: "whole file",
			spec: "a.py",
			want: FileSpec{Path: "a.py", Selection: WholeFile, Raw: "a.py"},
		},
		{
			name: "nested path whole file",
			spec: "src/pkg/handler.go",
			want: FileSpec{Path: "src/pkg/handler.go", Selection: WholeFile, Raw: "src/pkg/handler.go"},
		},
		{
			name: "single line",
			spec: "a.py:7",
			want: FileSpec{Path: "a.py", Selection: Lines(7, 7), Raw: "a.py:7"},
		},
		{
			name: "line range dash",
			spec: "a.py:10-20",
			want: FileSpec{Path: "a.py", Selection: Lines(10, 20), Raw: "a.py:10-20"},
		},
		{
			name: "line range colon",
			spec: "a.py:10:20",
			want: FileSpec{Path: "a.py", Selection: Lines(10, 20), Raw: "a.py:10:20"},
		},
		{
			name: "byte range dash",
			spec: "a.py@0-99",
			want: FileSpec{Path: "a.py", Selection: Bytes(0, 99), Raw: "a.py@0-99"},
		},
		{
			name: "byte range colon",
			spec: "a.py@0:99",
			want: FileSpec{Path: "a.py", Selection: Bytes(0, 99), Raw: "a.py@0:99"},
		},
		{name: "empty", spec: "", wantErr: true},
		{name: "blank", spec: "   ", wantErr: true},
		{name: "end before start", spec: "a.py:5-2", wantErr: true},
		{name: "byte end before start", spec: "a.py@9-3", wantErr: true},
		{name: "byte without range", spec: "a.py@10", wantErr: true},
		{name: "both delimiters", spec: "a.py:1@2", wantErr: true},
		{name: "both delimiters reversed", spec: "a.py@1:2:3", wantErr: true},
		{name: "empty path", spec: ":5-6", wantErr: true},
		{name: "empty path byte", spec: "@0-1", wantErr: true},
		{name: "non-numeric start", spec: "a.py:x-5", wantErr: true},
		{name: "non-numeric end", spec: "a.py:5-y", wantErr: true},
		{name: "trailing colon", spec: "a.py:", wantErr: true},
		{name: "trailing at", spec: "a.py@", wantErr: true},
		{name: "line zero", spec: "a.py:0-3", wantErr: true},
		{name: "negative single line", spec: "a.py:-5", wantErr: true},
		{name: "three bounds", spec: "a.py:1:2:3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %+v, want error", tt.spec, got)
				}
				if errors.KindOf(err) != errors.ParseError {
					t.Errorf("error kind = %q, want PARSE_ERROR", errors.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestParseIsPure(t *testing.T) {
	// Same input, same output, no hidden state.
	for i := 0; i < 3; i++ {
		got, err := Parse("src/a.py:3-9")
		if err != nil {
			t.Fatalf("Parse error on round %d: %v", i, err)
		}
		if got.Selection != Lines(3, 9) {
			t.Fatalf("round %d: selection = %+v", i, got.Selection)
		}
	}
}

func TestParseErrorCarriesSpec(t *testing.T) {
	_, err := Parse("a.py:5-2")
	rfErr := errors.AsError(err)
	if rfErr.Path != "a.py:5-2" {
		t.Errorf("error path = %q, want the original spec", rfErr.Path)
	}
}

func TestApplyWholeFile(t *testing.T) {
	content := []byte("line1\nline2\nline3\n")
	got, err := WholeFile.Apply(content)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("whole file selection altered content: %q", got)
	}
	if len(got) != len(content) {
		t.Errorf("length = %d, want %d", len(got), len(content))
	}
}

func TestApplyByteRange(t *testing.T) {
	content := []byte("0123456789")

	t.Run("exact prefix", func(t *testing.T) {
		got, err := Bytes(0, 4).Apply(content)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "01234" {
			t.Errorf("got %q, want 01234", got)
		}
		if len(got) != 5 {
			t.Errorf("ByteRange(0,4) returned %d bytes, want 5", len(got))
		}
	})

	t.Run("interior", func(t *testing.T) {
		got, err := Bytes(3, 6).Apply(content)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "3456" {
			t.Errorf("got %q, want 3456", got)
		}
	})

	t.Run("end clamps", func(t *testing.T) {
		got, err := Bytes(5, 5000).Apply(content)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "56789" {
			t.Errorf("got %q, want 56789", got)
		}
	})

	t.Run("start beyond EOF", func(t *testing.T) {
		_, err := Bytes(10, 20).Apply(content)
		if errors.KindOf(err) != errors.RangeOutOfBounds {
			t.Errorf("error kind = %q, want RANGE_OUT_OF_BOUNDS", errors.KindOf(err))
		}
	})
}

func TestApplyLineRange(t *testing.T) {
	fiveLines := []byte("l1\nl2\nl3\nl4\nl5\n")

	t.Run("middle lines", func(t *testing.T) {
		got, err := Lines(2, 4).Apply(fiveLines)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "l2\nl3\nl4" {
			t.Errorf("got %q, want l2..l4", got)
		}
	})

	t.Run("single line", func(t *testing.T) {
		got, err := Lines(3, 3).Apply(fiveLines)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "l3" {
			t.Errorf("got %q, want l3", got)
		}
	})

	t.Run("end clamps to last line", func(t *testing.T) {
		got, err := Lines(1, 10000).Apply(fiveLines)
		if err != nil {
			t.Fatalf("clamped range should not error: %v", err)
		}
		if n := len(strings.Split(string(got), "\n")); n != 5 {
			t.Errorf("returned %d lines, want exactly 5 (%q)", n, got)
		}
	})

	t.Run("no trailing newline in file", func(t *testing.T) {
		got, err := Lines(2, 3).Apply([]byte("a\nb\nc"))
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if string(got) != "b\nc" {
			t.Errorf("got %q, want b\\nc", got)
		}
	})

	t.Run("start beyond EOF", func(t *testing.T) {
		_, err := Lines(100, 110).Apply(fiveLines)
		if errors.KindOf(err) != errors.RangeOutOfBounds {
			t.Errorf("error kind = %q, want RANGE_OUT_OF_BOUNDS", errors.KindOf(err))
		}
	})

	t.Run("start just past last line", func(t *testing.T) {
		_, err := Lines(6, 6).Apply(fiveLines)
		if errors.KindOf(err) != errors.RangeOutOfBounds {
			t.Errorf("error kind = %q, want RANGE_OUT_OF_BOUNDS", errors.KindOf(err))
		}
	})
}

func TestSelectionString(t *testing.T) {
	tests := []struct {
		sel  Selection
		want string
	}{
		{WholeFile, ""},
		{Lines(7, 7), "line 7"},
		{Lines(10, 20), "lines 10-20"},
		{Bytes(0, 99), "bytes 0-99"},
	}
	for _, tt := range tests {
		if got := tt.sel.String(); got != tt.want {
			t.Errorf("String(%+v) = %q, want %q", tt.sel, got, tt.want)
		}
	}
}
