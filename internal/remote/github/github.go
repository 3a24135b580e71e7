// Package github implements the remote.Client interface on top of the
// GitHub REST API via the go-github SDK. It works against github.com
// and GitHub Enterprise instances.
package github

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/go-github/v67/github"

	"repofetch/internal/config"
	"repofetch/internal/errors"
	"repofetch/internal/identity"
	"repofetch/internal/logging"
	"repofetch/internal/remote"
)

// Client talks to one GitHub instance.
type Client struct {
	gh     *github.Client
	host   string
	token  string
	logger *logging.Logger
}

// New creates a Client from the remote configuration. An empty BaseURL
// targets github.com; otherwise the enterprise instance at BaseURL.
func New(cfg config.RemoteConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	ghc := github.NewClient(nil)
	if cfg.Token != "" {
		ghc = ghc.WithAuthToken(cfg.Token)
	}

	host := "github.com"
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Host == "" {
			return nil, errors.Newf(errors.ConfigInvalid, "invalid remote baseUrl %q", cfg.BaseURL)
		}
		host = u.Host
		ghc, err = ghc.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(errors.ConfigInvalid, "configuring enterprise URLs", err)
		}
	}

	return &Client{gh: ghc, host: host, token: cfg.Token, logger: logger}, nil
}

// RepositoryInfo retrieves repository metadata.
func (c *Client) RepositoryInfo(ctx context.Context, id identity.Identity) (*remote.RepoInfo, error) {
	if err := requireOwner(id); err != nil {
		return nil, err
	}

	repo, resp, err := c.gh.Repositories.Get(ctx, id.Org, id.Repo)
	if err != nil {
		return nil, wrapError(err, resp, fmt.Sprintf("getting repository %s", id.FullName()))
	}

	// The API reports size in kilobytes.
	return &remote.RepoInfo{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		SizeBytes:     int64(repo.GetSize()) * 1024,
		Private:       repo.GetPrivate(),
	}, nil
}

// ListTree returns all file paths at the identity's ref via a single
// recursive tree call.
func (c *Client) ListTree(ctx context.Context, id identity.Identity) ([]string, error) {
	if err := requireOwner(id); err != nil {
		return nil, err
	}

	ref := id.Ref
	if ref == "" {
		ref = "HEAD"
	}

	tree, resp, err := c.gh.Git.GetTree(ctx, id.Org, id.Repo, ref, true)
	if err != nil {
		return nil, wrapError(err, resp, fmt.Sprintf("listing tree of %s at %s", id.FullName(), ref))
	}
	if tree.GetTruncated() {
		c.logger.Warn("repository tree truncated by the API, listings may be incomplete", map[string]interface{}{
			"repo": id.FullName(),
			"ref":  ref,
		})
	}

	paths := make([]string, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			paths = append(paths, entry.GetPath())
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// GetFileContent retrieves one file's raw bytes. Files above the
// contents-API inline limit are fetched through the blob endpoint.
func (c *Client) GetFileContent(ctx context.Context, id identity.Identity, path string) ([]byte, error) {
	if err := requireOwner(id); err != nil {
		return nil, err
	}

	opts := &github.RepositoryContentGetOptions{Ref: id.Ref}
	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, id.Org, id.Repo, path, opts)
	if err != nil {
		return nil, wrapError(err, resp, fmt.Sprintf("getting %s from %s", path, id.FullName()))
	}
	if fileContent == nil {
		return nil, errors.Newf(errors.InvalidParameter, "%s is a directory, not a file", path).WithPath(path)
	}

	content, err := fileContent.GetContent()
	if err == nil {
		return []byte(content), nil
	}

	// The contents API inlines files only up to 1 MB; larger ones come
	// back with encoding "none" and just a blob SHA.
	sha := fileContent.GetSHA()
	if sha == "" {
		return nil, errors.Wrap(errors.RemoteNetworkError, fmt.Sprintf("decoding %s", path), err)
	}
	c.logger.Debug("falling back to blob endpoint for large file", map[string]interface{}{
		"path": path,
		"sha":  sha,
	})

	blob, resp, err := c.gh.Git.GetBlob(ctx, id.Org, id.Repo, sha)
	if err != nil {
		return nil, wrapError(err, resp, fmt.Sprintf("getting blob %s for %s", sha, path))
	}
	return decodeBlob(blob, path)
}

// CloneURL returns the HTTPS clone URL, embedding the token when set.
func (c *Client) CloneURL(id identity.Identity) string {
	if c.token != "" {
		return fmt.Sprintf("https://x-access-token:%s@%s/%s.git", c.token, c.host, id.FullName())
	}
	return fmt.Sprintf("https://%s/%s.git", c.host, id.FullName())
}

func requireOwner(id identity.Identity) error {
	if id.Org == "" {
		return errors.Newf(errors.InvalidParameter, "repository %q has no owner and no default organization is configured", id.Repo)
	}
	return nil
}

func decodeBlob(blob *github.Blob, path string) ([]byte, error) {
	raw := blob.GetContent()
	if blob.GetEncoding() != "base64" {
		return []byte(raw), nil
	}
	// Blob payloads arrive base64 encoded with embedded newlines.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw, "\n", ""))
	if err != nil {
		return nil, errors.Wrap(errors.RemoteNetworkError, fmt.Sprintf("decoding blob for %s", path), err)
	}
	return data, nil
}

// wrapError maps go-github and transport failures onto stable kinds.
func wrapError(err error, resp *github.Response, message string) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.Timeout, message, err)
	}

	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return errors.Wrap(errors.RemoteRateLimited, message, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return errors.Wrap(errors.RemoteRateLimited, message, err)
	}

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	var ghErr *github.ErrorResponse
	if stderrors.As(err, &ghErr) && ghErr.Response != nil {
		statusCode = ghErr.Response.StatusCode
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrap(errors.RemoteAuthFailed, message, err)
	case http.StatusNotFound:
		return errors.Wrap(errors.RemoteNotFound, message, err)
	case http.StatusTooManyRequests:
		return errors.Wrap(errors.RemoteRateLimited, message, err)
	default:
		return errors.Wrap(errors.RemoteNetworkError, message, err)
	}
}
