// Package fetch implements the retrieval orchestrator: the top-level
// entry point that turns a repository identity plus a list of file
// specs and glob patterns into one resolved record per file.
//
// Three retrieval modes exist. ModeAPI fetches every file individually
// through the remote host client; ModeClone reads from a cached local
// checkout; ModeAuto prefers the clone and falls back to per-file API
// fetches when the clone cannot be acquired. Failures local to one
// file never abort a batch: they become error records in the result.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"repofetch/internal/clonecache"
	"repofetch/internal/config"
	"repofetch/internal/errors"
	"repofetch/internal/filespec"
	"repofetch/internal/identity"
	"repofetch/internal/language"
	"repofetch/internal/logging"
	"repofetch/internal/notify"
	"repofetch/internal/paths"
	"repofetch/internal/pattern"
	"repofetch/internal/remote"
)

// Mode selects the retrieval path.
type Mode string

const (
	// ModeAPI fetches each file individually through the remote host.
	ModeAPI Mode = "api"
	// ModeClone reads files from a cached local checkout.
	ModeClone Mode = "clone"
	// ModeAuto prefers the clone path and falls back to the API path
	// when the clone cannot be acquired.
	ModeAuto Mode = "auto"
)

// ParseMode converts a mode flag value. Empty means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "api":
		return ModeAPI, nil
	case "clone":
		return ModeClone, nil
	default:
		return "", errors.Newf(errors.InvalidParameter, "unknown mode %q: want api, clone, or auto", s)
	}
}

// Options controls one Fetch call.
type Options struct {
	Mode       Mode
	Excludes   []string
	Submodules bool
	Refresh    bool
}

// ResolvedFile is one record of a batch result: either the requested
// content or the error that kept it from resolving. For a pattern that
// failed to expand, Path echoes the pattern itself.
type ResolvedFile struct {
	Path      string             `json:"path"`
	Spec      string             `json:"spec,omitempty"`
	Selection filespec.Selection `json:"selection"`
	Content   string             `json:"content,omitempty"`
	SizeBytes int64              `json:"sizeBytes,omitempty"`
	Language  string             `json:"language,omitempty"`
	Checksum  string             `json:"checksum,omitempty"`
	Error     *errors.Error      `json:"error,omitempty"`
}

// Result is the outcome of one batch fetch. Mode records the path
// actually used, after any fallback.
type Result struct {
	Repository string         `json:"repository"`
	Ref        string         `json:"ref"`
	Mode       Mode           `json:"mode"`
	Files      []ResolvedFile `json:"files"`
}

// Orchestrator coordinates spec parsing, pattern resolution, and the
// two retrieval paths.
type Orchestrator struct {
	remote      remote.Client
	clones      *clonecache.Manager
	quota       config.QuotaConfig
	concurrency int
	fileTimeout time.Duration
	logger      *logging.Logger
	notifier    notify.Notifier
}

// New builds an orchestrator. Quota and fetch tuning are copied out of
// cfg once; later configuration changes do not affect an instance.
func New(client remote.Client, clones *clonecache.Manager, cfg *config.Config, logger *logging.Logger, notifier notify.Notifier) (*Orchestrator, error) {
	if client == nil || clones == nil || cfg == nil {
		return nil, errors.New(errors.Internal, "fetch requires a remote client, a clone cache, and configuration")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	concurrency := cfg.Fetch.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	fileTimeout := cfg.Fetch.FileTimeout()
	if fileTimeout <= 0 {
		fileTimeout = 30 * time.Second
	}
	return &Orchestrator{
		remote:      client,
		clones:      clones,
		quota:       cfg.Quota,
		concurrency: concurrency,
		fileTimeout: fileTimeout,
		logger:      logger,
		notifier:    notifier,
	}, nil
}

// pending links a parsed spec to its slot in the result, so workers
// can fill records concurrently without sharing state.
type pending struct {
	idx  int
	spec filespec.FileSpec
}

// dedupKey identifies a requested file. The same path with two
// different selections is two distinct snippets, not a duplicate.
type dedupKey struct {
	path string
	sel  filespec.Selection
}

// Fetch resolves requests (file specs and glob patterns) against the
// repository and returns one record per requested file, in input order
// with each pattern's expansion sorted in place. Per-file failures are
// error records in the result; the returned error is non-nil only when
// the whole batch cannot proceed, such as a clone failure in ModeClone.
func (o *Orchestrator) Fetch(ctx context.Context, id identity.Identity, requests []string, opts Options) (*Result, error) {
	if len(requests) == 0 {
		return nil, errors.New(errors.InvalidParameter, "no file specs or patterns given")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if mode != ModeAPI && mode != ModeClone && mode != ModeAuto {
		return nil, errors.Newf(errors.InvalidParameter, "unknown mode %q: want api, clone, or auto", mode)
	}

	records, work := o.expand(ctx, id, requests, opts.Excludes)

	usedMode := mode
	if len(work) > 0 {
		switch mode {
		case ModeAPI:
			o.fetchViaAPI(ctx, id, records, work)

		case ModeClone:
			if err := o.fetchViaClone(ctx, id, opts, records, work); err != nil {
				o.emitFailed(id, err)
				return nil, err
			}

		case ModeAuto:
			usedMode = ModeClone
			if err := o.fetchViaClone(ctx, id, opts, records, work); err != nil {
				if !errors.IsCloneError(err) {
					o.emitFailed(id, err)
					return nil, err
				}
				o.logger.Warn("clone unavailable, falling back to per-file fetches", map[string]interface{}{
					"repository": id.FullName(),
					"error":      err.Error(),
				})
				usedMode = ModeAPI
				o.fetchViaAPI(ctx, id, records, work)
			}
		}
	}

	ref := o.resolveRef(ctx, id)
	failed := 0
	for i := range records {
		if records[i].Error != nil {
			failed++
		}
	}
	o.logger.Info("fetch completed", map[string]interface{}{
		"repository": id.FullName(),
		"ref":        ref,
		"mode":       string(usedMode),
		"files":      len(records),
		"failed":     failed,
	})
	o.emit(notify.EventFetchCompleted, id, map[string]interface{}{
		"repository": id.FullName(),
		"ref":        ref,
		"mode":       string(usedMode),
		"files":      len(records),
		"failed":     failed,
	})

	return &Result{Repository: id.FullName(), Ref: ref, Mode: usedMode, Files: records}, nil
}

// ResolvePatterns lists the repository tree and returns the paths the
// patterns match, without fetching any content.
func (o *Orchestrator) ResolvePatterns(ctx context.Context, id identity.Identity, patterns, excludes []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errors.New(errors.InvalidParameter, "no patterns given")
	}
	tctx, cancel := context.WithTimeout(ctx, o.fileTimeout)
	defer cancel()
	tree, err := o.remote.ListTree(tctx, id)
	if err != nil {
		return nil, errors.AsError(err)
	}
	return pattern.Resolve(tree, patterns, excludes)
}

// expand classifies each request, resolves patterns against the tree
// listing, and returns the record skeleton plus the files still to
// fetch. The tree is listed at most once, and only when a pattern
// needs it; parse failures, pattern misses, and tree-listing failures
// become error records here. Duplicates past the first occurrence of a
// (path, selection) are dropped.
func (o *Orchestrator) expand(ctx context.Context, id identity.Identity, requests []string, excludes []string) ([]ResolvedFile, []pending) {
	records := make([]ResolvedFile, 0, len(requests))
	var work []pending
	seen := make(map[dedupKey]bool)

	fail := func(path, raw string, err error) {
		records = append(records, ResolvedFile{Path: path, Spec: raw, Error: errors.AsError(err)})
	}
	want := func(spec filespec.FileSpec) {
		key := dedupKey{path: spec.Path, sel: spec.Selection}
		if seen[key] {
			return
		}
		seen[key] = true
		records = append(records, ResolvedFile{Path: spec.Path, Spec: spec.Raw, Selection: spec.Selection})
		work = append(work, pending{idx: len(records) - 1, spec: spec})
	}

	var tree []string
	var treeErr error
	treeLoaded := false
	loadTree := func() {
		if treeLoaded {
			return
		}
		treeLoaded = true
		tctx, cancel := context.WithTimeout(ctx, o.fileTimeout)
		defer cancel()
		tree, treeErr = o.remote.ListTree(tctx, id)
	}

	for _, raw := range requests {
		req := strings.TrimSpace(raw)

		if pattern.IsPattern(req) {
			if strings.ContainsAny(req, ":@") {
				fail(req, req, errors.New(errors.ParseError, "ranges apply to literal paths, not patterns").WithPath(req))
				continue
			}
			loadTree()
			if treeErr != nil {
				fail(req, req, errors.Wrap(errors.KindOf(treeErr), "listing repository tree", treeErr).WithPath(req))
				continue
			}
			matches, err := pattern.Resolve(tree, []string{req}, excludes)
			if err != nil {
				fail(req, req, err)
				continue
			}
			if len(matches) == 0 {
				fail(req, req, errors.New(errors.ResolutionMiss, "pattern matched no files").WithPath(req))
				continue
			}
			for _, path := range matches {
				want(filespec.FileSpec{Path: path, Selection: filespec.WholeFile, Raw: req})
			}
			continue
		}

		spec, err := filespec.Parse(req)
		if err != nil {
			fail(req, req, err)
			continue
		}
		normalized, err := paths.Normalize(spec.Path)
		if err != nil {
			fail(spec.Path, req, err)
			continue
		}
		spec.Path = normalized
		want(spec)
	}

	return records, work
}

// fetchViaAPI downloads each pending file through the remote host
// client with bounded concurrency. Remote APIs return whole files, so
// selections are applied after download. A timeout or failure on one
// file never cancels its siblings.
func (o *Orchestrator) fetchViaAPI(ctx context.Context, id identity.Identity, records []ResolvedFile, work []pending) {
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, p := range work {
		p := p
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, o.fileTimeout)
			defer cancel()
			content, err := o.remote.GetFileContent(fctx, id, p.spec.Path)
			if err != nil {
				records[p.idx].Error = errors.AsError(err)
				return nil
			}
			o.fill(&records[p.idx], p.spec, content)
			return nil
		})
	}
	_ = g.Wait()
}

// fetchViaClone acquires the clone and reads every pending file from
// it in parallel. Local reads have no external rate limit, so no
// concurrency bound applies.
func (o *Orchestrator) fetchViaClone(ctx context.Context, id identity.Identity, opts Options, records []ResolvedFile, work []pending) error {
	lease, err := o.clones.Acquire(ctx, id, opts.Submodules, opts.Refresh)
	if err != nil {
		return err
	}
	defer lease.Release()

	root := lease.Dir()
	var g errgroup.Group
	for _, p := range work {
		p := p
		g.Go(func() error {
			o.readFromClone(root, &records[p.idx], p.spec)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// readFromClone reads one file from the checkout, enforcing that the
// path stays inside it.
func (o *Orchestrator) readFromClone(root string, rec *ResolvedFile, spec filespec.FileSpec) {
	full, err := paths.ResolveUnder(root, spec.Path)
	if err != nil {
		rec.Error = errors.AsError(err)
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			rec.Error = errors.New(errors.RemoteNotFound, "no such file at this ref").WithPath(spec.Path)
		} else {
			rec.Error = errors.Wrap(errors.Internal, "reading from clone", err).WithPath(spec.Path)
		}
		return
	}
	if info.IsDir() {
		rec.Error = errors.New(errors.InvalidParameter, "path names a directory").WithPath(spec.Path)
		return
	}
	if info.Size() > o.quota.MaxFileBytes() {
		rec.SizeBytes = info.Size()
		rec.Error = errors.Newf(errors.TooLarge, "file is %d bytes, over the %d byte limit",
			info.Size(), o.quota.MaxFileBytes()).WithPath(spec.Path)
		return
	}
	content, err := os.ReadFile(full)
	if err != nil {
		rec.Error = errors.Wrap(errors.Internal, "reading from clone", err).WithPath(spec.Path)
		return
	}
	o.fill(rec, spec, content)
}

// fill completes a record from whole-file content: size ceiling,
// selection slicing, language tag, and a checksum of what is returned.
func (o *Orchestrator) fill(rec *ResolvedFile, spec filespec.FileSpec, content []byte) {
	rec.SizeBytes = int64(len(content))
	if rec.SizeBytes > o.quota.MaxFileBytes() {
		rec.Error = errors.Newf(errors.TooLarge, "file is %d bytes, over the %d byte limit",
			rec.SizeBytes, o.quota.MaxFileBytes()).WithPath(spec.Path)
		return
	}
	sliced, err := spec.Selection.Apply(content)
	if err != nil {
		rec.Error = errors.AsError(err).WithPath(spec.Path)
		return
	}
	sum := sha256.Sum256(sliced)
	rec.Content = string(sliced)
	rec.Checksum = hex.EncodeToString(sum[:])
	rec.Language = language.Detect(spec.Path)
}

// resolveRef names the ref a result was served at: the requested ref,
// or the remote's default branch when the identity left it empty.
func (o *Orchestrator) resolveRef(ctx context.Context, id identity.Identity) string {
	if id.Ref != "" {
		return id.Ref
	}
	rctx, cancel := context.WithTimeout(ctx, o.fileTimeout)
	defer cancel()
	if info, err := o.remote.RepositoryInfo(rctx, id); err == nil && info.DefaultBranch != "" {
		return info.DefaultBranch
	}
	return "HEAD"
}

func (o *Orchestrator) emitFailed(id identity.Identity, err error) {
	o.emit(notify.EventFetchFailed, id, map[string]interface{}{
		"repository": id.FullName(),
		"kind":       string(errors.KindOf(err)),
		"error":      err.Error(),
	})
}

func (o *Orchestrator) emit(t notify.EventType, id identity.Identity, data map[string]interface{}) {
	event, err := notify.NewEvent(t, id.String(), data)
	if err != nil {
		return
	}
	o.notifier.Emit(event)
}
