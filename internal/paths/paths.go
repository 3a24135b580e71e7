// Package paths normalizes repo-relative paths and guards filesystem
// reads against escaping a clone directory.
package paths

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"repofetch/internal/errors"
)

// Normalize converts a repo-relative path to canonical form: forward
// slashes, no leading "./", no trailing slash. It rejects absolute
// paths and paths that climb out of the repository.
func Normalize(p string) (string, error) {
	slashed := filepath.ToSlash(strings.TrimSpace(p))
	if slashed == "" {
		return "", errors.New(errors.InvalidParameter, "empty path")
	}
	if strings.HasPrefix(slashed, "/") {
		return "", errors.New(errors.InvalidParameter, "absolute paths are not allowed").WithPath(p)
	}
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New(errors.InvalidParameter, "path escapes the repository").WithPath(p)
	}
	if cleaned == "." {
		return "", errors.New(errors.InvalidParameter, "path names the repository root, not a file").WithPath(p)
	}
	return cleaned, nil
}

// ResolveUnder joins a repo-relative path onto root and verifies the
// result stays inside root even after resolving symlinks. It returns
// the absolute filesystem path to read.
func ResolveUnder(root string, rel string) (string, error) {
	canonical, err := Normalize(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(root, filepath.FromSlash(canonical))
	if !IsWithin(joined, root) {
		return "", errors.New(errors.InvalidParameter, "path escapes the repository").WithPath(rel)
	}
	return joined, nil
}

// IsWithin checks if a path is inside root. Symlinks are resolved so a
// link pointing outside the tree does not pass.
func IsWithin(p string, root string) bool {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = p
		} else {
			return false
		}
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = root
		} else {
			return false
		}
	}

	relative, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return false
	}
	relative = filepath.ToSlash(relative)
	return relative != ".." && !strings.HasPrefix(relative, "../")
}
