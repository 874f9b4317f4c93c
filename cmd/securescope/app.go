package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/advice"
	"github.com/pankaj-dahiya-devops/securescope/internal/catalog"
	"github.com/pankaj-dahiya-devops/securescope/internal/config"
	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/engine"
	"github.com/pankaj-dahiya-devops/securescope/internal/llm"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/inventory"
	"github.com/pankaj-dahiya-devops/securescope/internal/rules"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
	"github.com/pankaj-dahiya-devops/securescope/internal/telemetry"
	"github.com/pankaj-dahiya-devops/securescope/internal/vault"
)

// app holds the long-lived components shared by every command that touches
// the scan database.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *store.SQLStore
	catalog *catalog.Loader
	vault   vault.Vault
	closers []func() error
}

// loadConfig reads the configuration and builds the logger. Logs go to
// stderr so command output on stdout stays machine-readable.
func loadConfig(path string, stderr io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := telemetry.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// newApp opens the store and the configured vault backend.
func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", cfg.DatabasePath, err)
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		catalog: newCatalog(cfg),
		closers: []func() error{st.Close},
	}

	switch cfg.Vault.Backend {
	case "bolt":
		b, err := vault.OpenBolt(cfg.Vault.Path)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open vault %q: %w", cfg.Vault.Path, err)
		}
		a.vault = b
		a.closers = append(a.closers, b.Close)
	default:
		a.vault = vault.NewMemory()
	}
	return a, nil
}

// newCatalog reads catalog_dir when set and the bundled rules otherwise.
func newCatalog(cfg *config.Config) *catalog.Loader {
	return catalog.NewFromDir(cfg.CatalogDir)
}

// syncCatalog loads every catalog rule and mirrors it into rule_catalog.
// A catalog that does not parse stops the command.
func (a *app) syncCatalog(ctx context.Context) error {
	all, err := a.catalog.LoadRules("")
	if err != nil {
		return fmt.Errorf("load rule catalog: %w", err)
	}
	if err := a.store.SyncRuleCatalog(ctx, all); err != nil {
		return fmt.Errorf("sync rule catalog: %w", err)
	}
	a.logger.Info().Int("rules", len(all)).Msg("rule catalog synced")
	return nil
}

// orchestrator wires an Orchestrator around d. metrics may be nil.
func (a *app) orchestrator(d dispatch.Dispatcher, metrics *telemetry.Metrics) *engine.Orchestrator {
	return engine.New(engine.Options{
		Provider:      inventory.NewProvider(),
		Store:         a.store,
		Vault:         a.vault,
		Dispatcher:    d,
		Evaluator:     rules.NewEvaluator(a.catalog, rules.NewDefaultRegistry(), a.logger),
		Rules:         a.catalog,
		Enricher:      a.enricher(),
		Metrics:       metrics,
		Logger:        a.logger,
		CredentialTTL: a.cfg.Vault.TTL,
	})
}

// enricher returns the LLM enricher when the llm_advice flag is on and an
// endpoint is configured, and nil otherwise.
func (a *app) enricher() advice.Enricher {
	if !a.cfg.Enabled(config.FeatureLLMAdvice) || a.cfg.LLM.Endpoint == "" {
		return nil
	}
	client := llm.NewHTTPClient(a.cfg.LLM.Endpoint, a.cfg.LLM.Model, a.cfg.LLM.Timeout)
	a.logger.Info().Str("model", client.Model()).Msg("llm advice enabled")
	return advice.NewLLMEnricher(client, a.store, a.logger)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
