package main

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/rotisserie/eris"

	"github.com/use-agent/carscout/audit"
	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/engine"
	"github.com/use-agent/carscout/pipeline"
	"github.com/use-agent/carscout/source"
	"github.com/use-agent/carscout/store"
	"github.com/use-agent/carscout/webhook"
)

// env holds the long-lived collaborators shared by the subcommands.
type env struct {
	Store        *store.SQLiteStore
	Orchestrator *pipeline.Orchestrator
	Notifier     *webhook.Notifier // nil when no webhook is configured

	browser *engine.Browser
	memory  *engine.DomainMemory
}

// initEnv opens the store, builds the transport tiers and wires the
// orchestrator. The browser tiers are skipped when Chromium cannot start.
func initEnv(ctx context.Context) (*env, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	e := &env{Store: st}

	tiers := []engine.Engine{engine.NewHTTPEngine(cfg.Browser.DefaultProxy)}
	if cfg.Browser.Enabled {
		b, err := engine.LaunchBrowser(cfg.Browser, cfg.Scraper.BlockedResourceTypes)
		if err != nil {
			slog.Warn("browser unavailable, running HTTP-only", "error", err)
		} else {
			e.browser = b
			tiers = append(tiers, b.Engine(false), b.Engine(true))
		}
	}
	e.memory = engine.NewDomainMemory(cfg.Scraper.DomainMemoryTTL)
	fetcher := engine.NewEscalator(tiers, e.memory)

	sealer, err := newSealer(cfg.Encryption.Key)
	if err != nil {
		e.Close()
		return nil, err
	}

	checkpoints := []pipeline.Checkpointer{st}
	if cfg.Webhook.URL != "" {
		e.Notifier = webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret, webhook.WithTimeout(cfg.Webhook.Timeout))
		checkpoints = append(checkpoints, e.Notifier)
	}

	srcOpts := []source.Option{
		source.WithFetchTimeout(cfg.Scraper.FetchTimeout),
		source.WithMaxRetries(cfg.Scraper.MaxRetries),
	}
	if srcs := source.FromConfig(cfg.Scraper.Sources); len(srcs) > 0 {
		srcOpts = append(srcOpts, source.WithSources(srcs))
	}
	if d := source.FromConfig([]config.SourceConfig{cfg.Scraper.Discovery}); len(d) == 1 {
		srcOpts = append(srcOpts, source.WithDiscovery(d[0]))
	}

	e.Orchestrator = pipeline.New(fetcher,
		pipeline.WithCheckpointers(checkpoints...),
		pipeline.WithSealer(sealer),
		pipeline.WithSourceOptions(srcOpts...),
		pipeline.WithAuditConfig(audit.Config{
			MaxRequestsPerMinute: cfg.Audit.MaxRequestsPerMinute,
			MaxIncidents:         cfg.Audit.MaxIncidents,
		}),
	)
	slog.Info("pipeline ready",
		"tiers", len(tiers),
		"store", cfg.Store.Path,
		"webhook", cfg.Webhook.URL != "",
	)
	return e, nil
}

// newSealer decodes a hex key. An empty key gets a random per-process key.
func newSealer(hexKey string) (*pipeline.Sealer, error) {
	if hexKey == "" {
		slog.Warn("no encryption key configured, sealed prices will not be readable after exit")
		return pipeline.NewSealer(nil)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, eris.Wrap(err, "decode encryption key")
	}
	return pipeline.NewSealer(key)
}

func (e *env) Close() {
	if e.memory != nil {
		e.memory.Stop()
	}
	if e.browser != nil {
		e.browser.Close()
	}
	if err := e.Store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}
