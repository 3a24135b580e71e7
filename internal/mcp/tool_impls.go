package mcp

import (
	"context"
	"encoding/json"

	"repofetch/internal/errors"
	"repofetch/internal/fetch"
	"repofetch/internal/identity"
	"repofetch/internal/render"
)

// resolveRepository turns the caller's repository argument into a
// validated identity: aliases first, then the configured default org
// for bare names.
func (s *Server) resolveRepository(params map[string]interface{}) (identity.Identity, error) {
	raw, ok := params["repository"].(string)
	if !ok || raw == "" {
		return identity.Identity{}, errors.New(errors.InvalidParameter, "missing required parameter: repository")
	}

	id, err := identity.ResolveInput(raw, s.aliases)
	if err != nil {
		return identity.Identity{}, err
	}

	id = id.WithDefaultOrg(s.defaultOrg)
	if err := id.Validate(); err != nil {
		return identity.Identity{}, err
	}

	return id, nil
}

// stringSlice extracts an array-of-strings parameter. JSON arrays
// decode as []interface{}; non-string members are dropped.
func stringSlice(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// fetchOptions reads the mode/excludes/submodules/refresh arguments
// shared by fetch_files and get_files_bulk.
func fetchOptions(params map[string]interface{}) (fetch.Options, error) {
	modeStr, _ := params["mode"].(string)
	mode, err := fetch.ParseMode(modeStr)
	if err != nil {
		return fetch.Options{}, err
	}

	submodules, _ := params["submodules"].(bool)
	refresh, _ := params["refresh"].(bool)

	return fetch.Options{
		Mode:       mode,
		Excludes:   stringSlice(params, "excludes"),
		Submodules: submodules,
		Refresh:    refresh,
	}, nil
}

// toolFetchFiles implements fetch_files.
func (s *Server) toolFetchFiles(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := s.resolveRepository(params)
	if err != nil {
		return "", err
	}

	opts, err := fetchOptions(params)
	if err != nil {
		return "", err
	}

	result, err := s.orch.Fetch(ctx, id, stringSlice(params, "files"), opts)
	if err != nil {
		return "", err
	}

	return render.Codeblock(result), nil
}

// toolGetSnippets implements get_snippets. Snippets are always served
// per-file over the remote API; a few ranges never justify a clone.
func (s *Server) toolGetSnippets(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := s.resolveRepository(params)
	if err != nil {
		return "", err
	}

	result, err := s.orch.Fetch(ctx, id, stringSlice(params, "snippets"), fetch.Options{Mode: fetch.ModeAPI})
	if err != nil {
		return "", err
	}

	return render.Codeblock(result), nil
}

// toolGetFilesBulk implements get_files_bulk.
func (s *Server) toolGetFilesBulk(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := s.resolveRepository(params)
	if err != nil {
		return "", err
	}

	opts, err := fetchOptions(params)
	if err != nil {
		return "", err
	}

	result, err := s.orch.Fetch(ctx, id, stringSlice(params, "files"), opts)
	if err != nil {
		return "", err
	}

	return render.JSON(result)
}

// toolResolvePatterns implements resolve_patterns.
func (s *Server) toolResolvePatterns(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := s.resolveRepository(params)
	if err != nil {
		return "", err
	}

	matches, err := s.orch.ResolvePatterns(ctx, id, stringSlice(params, "patterns"), stringSlice(params, "excludes"))
	if err != nil {
		return "", err
	}

	return marshalIndent(map[string]interface{}{
		"repository": id.FullName(),
		"count":      len(matches),
		"files":      matches,
	})
}

// toolCloneStatus implements clone_status.
func (s *Server) toolCloneStatus(ctx context.Context, params map[string]interface{}) (string, error) {
	return marshalIndent(s.clones.Status())
}

// toolCleanupClone implements cleanup_clone.
func (s *Server) toolCleanupClone(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := s.resolveRepository(params)
	if err != nil {
		return "", err
	}

	removed, err := s.clones.Cleanup(id)
	if err != nil {
		return "", err
	}

	s.logger.Info("cleaned up clones", map[string]interface{}{
		"repository": id.FullName(),
		"removed":    removed,
	})

	return marshalIndent(map[string]interface{}{
		"repository": id.FullName(),
		"removed":    removed,
	})
}

func marshalIndent(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.Internal, "marshaling tool result", err)
	}
	return string(data), nil
}
