// Package remote abstracts the hosting provider used for API-mode
// retrieval and repository metadata lookups.
package remote

import (
	"context"

	"repofetch/internal/identity"
)

// RepoInfo describes a repository as reported by the hosting provider.
type RepoInfo struct {
	FullName      string `json:"fullName"`
	DefaultBranch string `json:"defaultBranch"`
	SizeBytes     int64  `json:"sizeBytes"`
	Private       bool   `json:"private"`
}

// Client is the read-only hosting-provider surface the fetcher needs.
// Implementations map provider failures onto the repofetch error kinds
// (REMOTE_NOT_FOUND, REMOTE_AUTH_FAILED, REMOTE_RATE_LIMITED,
// REMOTE_NETWORK_ERROR, TIMEOUT).
type Client interface {
	// RepositoryInfo returns metadata for the repository named by id.
	RepositoryInfo(ctx context.Context, id identity.Identity) (*RepoInfo, error)

	// ListTree returns every file path reachable from the identity's
	// ref, repo-relative with forward slashes. Directories are omitted.
	ListTree(ctx context.Context, id identity.Identity) ([]string, error)

	// GetFileContent returns the raw bytes of one file at the
	// identity's ref.
	GetFileContent(ctx context.Context, id identity.Identity, path string) ([]byte, error)

	// CloneURL returns the HTTPS clone URL for the repository, with
	// credentials embedded when the client holds a token. Callers must
	// not log the result unredacted.
	CloneURL(id identity.Identity) string
}
