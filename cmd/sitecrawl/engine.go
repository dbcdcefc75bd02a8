package main

import (
	"fmt"
	"log/slog"

	"sitecrawl/internal/actions"
	"sitecrawl/internal/config"
	"sitecrawl/internal/crawler"
	"sitecrawl/internal/extract"
	"sitecrawl/internal/fetch"
	"sitecrawl/pkg/crawl"
)

// buildEngine wires a crawler.Engine out of a loaded Config, following the
// same collaborator seams the control API and the CLI both depend on:
// a fetch.Fetcher, an extract.LinkExtractor, a fetch.Pool factory, and
// whichever reference actions are enabled.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*crawler.Engine, error) {
	limiter := fetch.NewDomainLimiter(cfg.Crawl.PerDomainDelay.Duration, fetch.RateLimiterSettings{
		Requests: cfg.Crawl.RateLimitPerDomain.Requests,
		Window:   cfg.Crawl.RateLimitPerDomain.Window.Duration,
	})
	fetcher := fetch.NewFetcher(limiter)
	extractor := extract.NewLinkExtractor(extract.Options{MaxLinksPerPage: cfg.Crawl.MaxLinksPerPage})

	factory := func(size int) (crawl.ClientPool, error) {
		return fetch.NewPool(size, fetch.PoolOptions{
			UserAgent:    cfg.Client.UserAgent,
			Timeout:      cfg.Client.Timeout.Duration,
			MaxBodyBytes: cfg.Client.MaxBodyBytes,
			ProxyURL:     cfg.Client.ProxyURL,
		})
	}

	pageActions, err := buildActions(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []crawler.Option{
		crawler.WithLogger(logger),
		crawler.WithReportEvery(cfg.Crawl.ReportProgressPerDownloaded),
	}
	if cfg.Crawl.ThreadLimit > 0 {
		opts = append(opts, crawler.WithThreadLimit(cfg.Crawl.ThreadLimit))
	}

	engine, err := crawler.NewEngine(
		cfg.Crawl.BaseURL,
		cfg.Crawl.BaseURLSecure,
		fetcher,
		extractor,
		factory,
		pageActions,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	if len(cfg.Crawl.AllowedSuffixes) > 0 {
		engine.SetAllowedSuffixes(cfg.Crawl.AllowedSuffixes)
	}
	if len(cfg.Crawl.BlockedPatterns) > 0 {
		engine.SetBlocked(cfg.Crawl.BlockedPatterns)
	}
	if cfg.Crawl.MaxProcessWaiting > 0 {
		if err := engine.SetMaxProcessWaiting(cfg.Crawl.MaxProcessWaiting); err != nil {
			return nil, err
		}
	}
	if cfg.Crawl.ShortCircuitAfter > 0 {
		if err := engine.SetShortCircuitAfter(cfg.Crawl.ShortCircuitAfter); err != nil {
			return nil, err
		}
	}
	if cfg.Client.DisableRedirects {
		engine.DisableRedirects()
	}
	if cfg.Client.EnableJavaScript {
		engine.EnableJavaScript()
	}
	for _, c := range cfg.Client.Cookies {
		engine.AddCookie(c.Name, c.Value, c.Domain)
	}
	if len(cfg.Crawl.Seeds) > 0 {
		engine.SetIncludePath(cfg.Crawl.Seeds)
	}

	return engine, nil
}

func buildActions(cfg *config.Config, logger *slog.Logger) ([]crawl.Action, error) {
	var list []crawl.Action

	if cfg.Actions.Markdown.Enabled {
		m := cfg.Actions.Markdown
		list = append(list, actions.NewMarkdownExtractAction(actions.PreprocessOptions{
			RemoveAds:        m.RemoveAds,
			RemoveScripts:    m.RemoveScripts,
			RemoveStyles:     m.RemoveStyles,
			TrimWhitespace:   m.TrimWhitespace,
			AdSelectors:      m.AdSelectors,
			ExtraDropClasses: m.ExtraDropClasses,
		}, nil, logger))
	}

	if cfg.Actions.Postgres.Enabled {
		p := cfg.Actions.Postgres
		action, err := actions.NewPostgresPageAction(actions.SQLConfig{
			DSN:             p.DSN,
			CreateIfMissing: p.CreateIfMissing,
			AutoMigrate:     p.AutoMigrate,
			MaxOpenConns:    p.MaxOpenConns,
			MaxIdleConns:    p.MaxIdleConns,
			ConnMaxLifetime: p.ConnMaxLifetime.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres action: %w", err)
		}
		list = append(list, action)
	}

	return list, nil
}
