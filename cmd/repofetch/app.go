package main

import (
	"time"

	"repofetch/internal/clonecache"
	"repofetch/internal/config"
	"repofetch/internal/fetch"
	"repofetch/internal/gitexec"
	"repofetch/internal/identity"
	"repofetch/internal/logging"
	"repofetch/internal/notify"
	"repofetch/internal/remote/github"
)

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	clones   *clonecache.Manager
	orch     *fetch.Orchestrator
	notifier notify.Notifier
	aliases  map[string]identity.Identity
}

// setupApp loads configuration and wires the remote client, clone
// cache, and orchestrator every retrieval command runs on.
func setupApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, buildLogger(cfg))
}

func buildApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	client, err := github.New(cfg.Remote, logger)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop()
	if len(cfg.Webhooks) > 0 {
		notifier = notify.NewWebhookNotifier(cfg.Webhooks, logger)
	}

	clones, err := clonecache.NewManager(clonecache.Options{
		Root:                  cfg.CacheRoot,
		Quota:                 cfg.Quota,
		CloneTimeout:          cfg.Fetch.CloneTimeout(),
		SubmoduleCloneTimeout: cfg.Fetch.SubmoduleCloneTimeout(),
		Remote:                client,
		Cloner:                gitexec.New(logger),
		Logger:                logger,
		Notifier:              notifier,
	})
	if err != nil {
		return nil, err
	}

	orch, err := fetch.New(client, clones, cfg, logger, notifier)
	if err != nil {
		return nil, err
	}

	aliases, err := identity.LoadAliases(cfg.AliasesFile)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		clones:   clones,
		orch:     orch,
		notifier: notifier,
		aliases:  aliases,
	}, nil
}

// close flushes the webhook notifier so short-lived commands do not
// drop queued deliveries on exit.
func (a *app) close() {
	if wn, ok := a.notifier.(*notify.WebhookNotifier); ok {
		if err := wn.Close(5 * time.Second); err != nil {
			a.logger.Warn("webhook notifier shutdown incomplete", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// resolveIdentity parses a repository argument, expanding aliases and
// completing a bare name with the configured default organization.
func (a *app) resolveIdentity(input string) (identity.Identity, error) {
	id, err := identity.ResolveInput(input, a.aliases)
	if err != nil {
		return identity.Identity{}, err
	}
	id = id.WithDefaultOrg(a.cfg.Remote.DefaultOrg)
	if err := id.Validate(); err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}
