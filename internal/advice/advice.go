// Package advice attaches remediation guidance to persisted findings.
package advice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/llm"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Enricher adds advice to findings that have already been committed.
// Errors are reported to the caller, which logs them; they never change a
// region's outcome.
type Enricher interface {
	Enrich(ctx context.Context, findings []models.Finding) error
}

// Noop is the default Enricher. It does nothing.
type Noop struct{}

// Enrich implements Enricher.
func (Noop) Enrich(context.Context, []models.Finding) error { return nil }

// AdviceStore is the subset of the scan store the LLM enricher writes to.
type AdviceStore interface {
	SaveAdvice(ctx context.Context, advice models.Advice) error
}

const instructions = "You are AWS SecureScope, a security assistant. " +
	"Create concise Markdown with sections: Why it matters, Remediation steps (CLI + Console), " +
	"Blast radius, and Regression tests."

// PayloadItem is what the model sees of one finding. The resource id never
// leaves the process.
type PayloadItem struct {
	RuleID   string          `json:"rule_id"`
	Severity models.Severity `json:"severity"`
	Evidence map[string]any  `json:"evidence"`
}

// LLMEnricher asks the model for one Markdown answer covering a batch of
// findings and stores it against every finding in the batch.
type LLMEnricher struct {
	client llm.LLMClient
	store  AdviceStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewLLMEnricher returns an enricher backed by client.
func NewLLMEnricher(client llm.LLMClient, store AdviceStore, logger zerolog.Logger) *LLMEnricher {
	return &LLMEnricher{
		client: client,
		store:  store,
		logger: logger.With().Str("component", "advice").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enrich implements Enricher. An empty batch or an unavailable client is a
// no-op.
func (e *LLMEnricher) Enrich(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 || !e.client.IsAvailable(ctx) {
		return nil
	}

	payload := BuildPayload(findings)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode advice payload: %w", err)
	}
	hash := PromptHash(raw)

	content, err := e.client.Complete(ctx, instructions+"\nContext: "+string(raw))
	if err != nil {
		return fmt.Errorf("generate advice: %w", err)
	}

	at := e.now()
	for _, f := range findings {
		err := e.store.SaveAdvice(ctx, models.Advice{
			ID:         uuid.NewString(),
			FindingID:  f.ID,
			Model:      e.client.Model(),
			PromptHash: hash,
			ContentMD:  content,
			CreatedAt:  at,
		})
		if err != nil {
			return fmt.Errorf("save advice for finding %s: %w", f.ID, err)
		}
	}
	e.logger.Debug().Int("findings", len(findings)).Str("prompt_hash", hash).Msg("advice stored")
	return nil
}

// BuildPayload projects findings to the model-facing payload, dropping any
// resource_id evidence key.
func BuildPayload(findings []models.Finding) []PayloadItem {
	out := make([]PayloadItem, 0, len(findings))
	for _, f := range findings {
		evidence := make(map[string]any, len(f.Evidence))
		for k, v := range f.Evidence {
			if k == "resource_id" {
				continue
			}
			evidence[k] = v
		}
		out = append(out, PayloadItem{RuleID: f.RuleID, Severity: f.Severity, Evidence: evidence})
	}
	return out
}

// PromptHash is the hex SHA-256 of the encoded payload. encoding/json sorts
// map keys, so equal payloads hash equally.
func PromptHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
