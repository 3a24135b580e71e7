// Package identity models the (organization, repository, ref) triple
// that names a remote repository snapshot, and the alias shorthand
// callers may use for it.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"repofetch/internal/errors"
)

// namePattern constrains org and repository names. Matches what the
// common hosts accept: alphanumerics, dots, dashes, underscores.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// refPattern constrains refs. Branch names may contain slashes
// (release/1.2); tags and SHAs fit the same alphabet.
var refPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Identity names a remote repository snapshot. Immutable once
// constructed; together with the submodule flag it forms the clone
// cache key.
type Identity struct {
	Org  string `json:"org,omitempty"`
	Repo string `json:"repo"`
	Ref  string `json:"ref,omitempty"` // empty means the remote's default branch
}

// Parse builds an Identity from one of the accepted spellings:
// "repo", "org/repo", "repo@ref", "org/repo@ref". The org may be
// filled in later from configuration via WithDefaultOrg.
func Parse(s string) (Identity, error) {
	if strings.TrimSpace(s) == "" {
		return Identity{}, errors.New(errors.InvalidParameter, "repository identity is empty")
	}

	var id Identity
	rest := s
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		id.Ref = rest[at+1:]
		rest = rest[:at]
		if id.Ref == "" {
			return Identity{}, errors.Newf(errors.InvalidParameter, "identity %q has an empty ref after '@'", s)
		}
	}

	switch parts := strings.Split(rest, "/"); len(parts) {
	case 1:
		id.Repo = parts[0]
	case 2:
		id.Org, id.Repo = parts[0], parts[1]
	default:
		return Identity{}, errors.Newf(errors.InvalidParameter, "identity %q must be repo or org/repo", s)
	}

	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the identity's fields against the accepted name
// alphabets. An empty org is allowed (filled from configuration); an
// empty repo is not.
func (id Identity) Validate() error {
	if id.Repo == "" {
		return errors.New(errors.InvalidParameter, "repository name is empty")
	}
	if !namePattern.MatchString(id.Repo) {
		return errors.Newf(errors.InvalidParameter, "invalid repository name %q", id.Repo)
	}
	if id.Org != "" && !namePattern.MatchString(id.Org) {
		return errors.Newf(errors.InvalidParameter, "invalid organization name %q", id.Org)
	}
	if id.Ref != "" && (!refPattern.MatchString(id.Ref) || strings.HasPrefix(id.Ref, "-")) {
		return errors.Newf(errors.InvalidParameter, "invalid ref %q", id.Ref)
	}
	return nil
}

// WithDefaultOrg returns a copy with the org filled in when the
// identity has none.
func (id Identity) WithDefaultOrg(org string) Identity {
	if id.Org == "" {
		id.Org = org
	}
	return id
}

// FullName returns "org/repo", or just "repo" when no org is set.
func (id Identity) FullName() string {
	if id.Org == "" {
		return id.Repo
	}
	return id.Org + "/" + id.Repo
}

// RefLabel returns the ref, or "default" when the identity tracks the
// remote's default branch. Used in cache keys and status output.
func (id Identity) RefLabel() string {
	if id.Ref == "" {
		return "default"
	}
	return id.Ref
}

// String renders the identity back to its canonical spelling.
func (id Identity) String() string {
	if id.Ref == "" {
		return id.FullName()
	}
	return fmt.Sprintf("%s@%s", id.FullName(), id.Ref)
}
