package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/advice"
	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/securescope/internal/rules"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
	"github.com/pankaj-dahiya-devops/securescope/internal/telemetry"
	"github.com/pankaj-dahiya-devops/securescope/internal/vault"
)

// ExportFormat selects the ExportScan rendering.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "md"
)

// ScanRequest is the sole input to StartScan.
type ScanRequest struct {
	Credential models.Credential

	// Regions is an explicit region list. Empty, or any entry equal to
	// "all", means every enabled region.
	Regions []string
}

// Provider is the account-facing side of a scan. *inventory.Provider is the
// production implementation.
type Provider interface {
	ValidateCredentials(ctx context.Context, cred models.Credential) (*common.Validation, error)
	ActiveRegions(ctx context.Context, cred models.Credential) ([]string, error)
	Collectors(ctx context.Context, cred models.Credential, region string) ([]common.Collector, error)
}

// RuleEvaluator runs a service's catalog rules over collected records.
// *rules.Evaluator satisfies it.
type RuleEvaluator interface {
	Evaluate(service string, resources []models.ResourceRecord) ([]rules.Result, error)
}

// Options wires an Orchestrator. Provider, Store, Vault, Dispatcher,
// Evaluator and Rules are required; the rest have working defaults.
type Options struct {
	Provider   Provider
	Store      store.Store
	Vault      vault.Vault
	Dispatcher dispatch.Dispatcher
	Evaluator  RuleEvaluator
	Rules      rules.RuleSource

	// Enricher defaults to advice.Noop.
	Enricher advice.Enricher

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	Logger zerolog.Logger

	// CredentialTTL defaults to vault.DefaultTTL.
	CredentialTTL time.Duration
}

// Orchestrator owns the scan lifecycle: start, background execution,
// per-region workers and the read projections over persisted state.
//
// It never calls the AWS SDK directly; collection goes through Provider
// and evaluation through RuleEvaluator.
type Orchestrator struct {
	provider   Provider
	store      store.Store
	vault      vault.Vault
	dispatcher dispatch.Dispatcher
	evaluator  RuleEvaluator
	rules      rules.RuleSource
	enricher   advice.Enricher
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	ttl        time.Duration
	now        func() time.Time
}

// New returns an Orchestrator wired from opts.
func New(opts Options) *Orchestrator {
	enricher := opts.Enricher
	if enricher == nil {
		enricher = advice.Noop{}
	}
	ttl := opts.CredentialTTL
	if ttl <= 0 {
		ttl = vault.DefaultTTL
	}
	return &Orchestrator{
		provider:   opts.Provider,
		store:      opts.Store,
		vault:      opts.Vault,
		dispatcher: opts.Dispatcher,
		evaluator:  opts.Evaluator,
		rules:      opts.Rules,
		enricher:   enricher,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "orchestrator").Logger(),
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
	}
}
