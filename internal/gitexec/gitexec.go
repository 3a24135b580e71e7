// Package gitexec shells out to the git binary for shallow clones. The
// runner only permits the handful of subcommands repofetch needs and
// never lets credentials reach logs or error messages.
package gitexec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"repofetch/internal/errors"
	"repofetch/internal/logging"
)

// Result captures one git invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

var allowedSubcommands = map[string]struct{}{
	"clone":     {},
	"submodule": {},
	"branch":    {},
}

// Runner executes git commands.
type Runner struct {
	logger *logging.Logger
}

// New creates a Runner.
func New(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{logger: logger}
}

// CloneOptions describes one shallow clone.
type CloneOptions struct {
	// URL is the clone URL, possibly with embedded credentials.
	URL string
	// Ref is the branch or tag to clone; empty means the default branch.
	Ref string
	// Dir is the destination directory.
	Dir string
	// Submodules clones submodules shallowly as well.
	Submodules bool
	// Timeout bounds the main clone.
	Timeout time.Duration
	// SubmoduleTimeout bounds the follow-up submodule update.
	SubmoduleTimeout time.Duration
}

// Clone performs a depth-1 clone into opts.Dir. Failures carry one of
// the CLONE_* kinds so callers can decide whether to fall back.
func (r *Runner) Clone(ctx context.Context, opts CloneOptions) error {
	args := buildCloneArgs(opts)
	r.logger.Info("cloning repository", map[string]interface{}{
		"url": RedactURL(opts.URL),
		"ref": opts.Ref,
		"dir": opts.Dir,
	})

	cloneCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if result, err := r.run(cloneCtx, args, ""); err != nil {
		return classifyCloneError(opts, result, err)
	}

	if !opts.Submodules {
		return nil
	}

	subCtx := ctx
	if opts.SubmoduleTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, opts.SubmoduleTimeout)
		defer cancel()
	}
	subArgs := []string{"submodule", "update", "--init", "--recursive", "--depth", "1"}
	if result, err := r.run(subCtx, subArgs, opts.Dir); err != nil {
		return classifyCloneError(opts, result, err)
	}
	return nil
}

// CurrentBranch reports the checked-out branch of a clone, or "HEAD"
// when the clone is on a detached head.
func (r *Runner) CurrentBranch(ctx context.Context, dir string) (string, error) {
	result, err := r.run(ctx, []string{"branch", "--show-current"}, dir)
	if err != nil {
		return "", errors.Wrap(errors.CloneExecutorFailure, "reading current branch", err)
	}
	branch := strings.TrimSpace(result.Stdout)
	if branch == "" {
		return "HEAD", nil
	}
	return branch, nil
}

func (r *Runner) run(ctx context.Context, args []string, dir string) (Result, error) {
	if err := validateArgs(args); err != nil {
		return Result{Stderr: err.Error(), ExitCode: -1}, err
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}
	r.logger.Debug("git command finished", map[string]interface{}{
		"args": strings.Join(redactArgs(args), " "),
		"exit": result.ExitCode,
	})
	if err != nil {
		return result, fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return result, nil
}

func buildCloneArgs(opts CloneOptions) []string {
	args := []string{"clone", "--depth", "1"}
	if opts.Ref != "" {
		args = append(args, "--branch", opts.Ref)
	}
	if opts.Submodules {
		args = append(args, "--recurse-submodules", "--shallow-submodules")
	}
	return append(args, opts.URL, opts.Dir)
}

func validateArgs(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("git command is required")
	}
	if _, ok := allowedSubcommands[args[0]]; !ok {
		return fmt.Errorf("git subcommand %q is not allowed", args[0])
	}
	return nil
}

// classifyCloneError turns git stderr into a stable clone error kind.
func classifyCloneError(opts CloneOptions, result Result, err error) error {
	stderr := redactSecret(result.Stderr, opts.URL)
	msg := fmt.Sprintf("cloning %s", RedactURL(opts.URL))
	if stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(stderr))
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.CloneExecutorFailure, msg+" (timed out)", err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "invalid credentials"),
		strings.Contains(lower, "permission denied"):
		return errors.Wrap(errors.CloneAuthFailed, msg, err)
	case strings.Contains(lower, "remote branch") && strings.Contains(lower, "not found"),
		strings.Contains(lower, "couldn't find remote ref"),
		strings.Contains(lower, "could not find remote ref"):
		return errors.Wrap(errors.CloneRefNotFound, msg, err)
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "unable to access"),
		strings.Contains(lower, "early eof"),
		strings.Contains(lower, "remote end hung up"):
		return errors.Wrap(errors.CloneNetworkError, msg, err)
	default:
		return errors.Wrap(errors.CloneExecutorFailure, msg, err)
	}
}

// RedactURL strips credentials from a clone URL for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}

// redactSecret removes the URL's password from arbitrary text, since
// git occasionally echoes the full URL into stderr.
func redactSecret(text, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return text
	}
	if password, ok := u.User.Password(); ok && password != "" {
		text = strings.ReplaceAll(text, password, "***")
	}
	if username := u.User.Username(); username != "" && username != "***" {
		text = strings.ReplaceAll(text, username+":", "")
	}
	return text
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.Contains(arg, "://") {
			out[i] = RedactURL(arg)
		} else {
			out[i] = arg
		}
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !stderrors.As(err, &exitErr) {
		return -1
	}
	return exitErr.ExitCode()
}
