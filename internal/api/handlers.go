package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/engine"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
)

const maxBodyBytes = 1 << 16

type handler struct {
	scans Scans
}

// startRequest is the POST /scans/start body. regionScope accepts a list
// of regions or the string "all".
type startRequest struct {
	AccessKeyID     string          `json:"accessKeyId"`
	SecretAccessKey string          `json:"secretAccessKey"`
	SessionToken    string          `json:"sessionToken"`
	RoleARN         string          `json:"roleArn"`
	ExternalID      string          `json:"externalId"`
	RegionScope     json.RawMessage `json:"regionScope"`
}

func (r startRequest) toScanRequest() (engine.ScanRequest, error) {
	req := engine.ScanRequest{Credential: models.Credential{
		AccessKeyID:     strings.TrimSpace(r.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(r.SecretAccessKey),
		SessionToken:    strings.TrimSpace(r.SessionToken),
		RoleARN:         strings.TrimSpace(r.RoleARN),
		ExternalID:      strings.TrimSpace(r.ExternalID),
	}}
	if req.Credential.AccessKeyID == "" || req.Credential.SecretAccessKey == "" {
		return req, errors.New("accessKeyId and secretAccessKey are required")
	}

	raw := strings.TrimSpace(string(r.RegionScope))
	if raw == "" || raw == "null" {
		return req, nil
	}
	var single string
	if err := json.Unmarshal(r.RegionScope, &single); err == nil {
		req.Regions = []string{single}
		return req, nil
	}
	if err := json.Unmarshal(r.RegionScope, &req.Regions); err != nil {
		return req, errors.New("regionScope must be a list of regions or \"all\"")
	}
	return req, nil
}

type findingItem struct {
	ID       string          `json:"id"`
	RuleID   string          `json:"ruleId"`
	Service  string          `json:"service"`
	Severity models.Severity `json:"severity"`
	Status   string          `json:"status"`
	Evidence map[string]any  `json:"evidence"`
	Region   *string         `json:"region"`
}

func (h *handler) startScan(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req, err := body.toScanRequest()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	scanID, err := h.scans.StartScan(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"scanId": scanID})
}

func (h *handler) scanStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.scans.GetStatus(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (h *handler) scanSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scans.GetSummary(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

func (h *handler) listFindings(w http.ResponseWriter, r *http.Request) {
	filter := store.FindingFilter{
		Service:  r.URL.Query().Get("service"),
		Severity: r.URL.Query().Get("severity"),
	}
	findings, err := h.scans.ListFindings(r.Context(), chi.URLParam(r, "scanID"), filter)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	items := make([]findingItem, 0, len(findings))
	for _, f := range findings {
		items = append(items, findingItem{
			ID:       f.ID,
			RuleID:   f.RuleID,
			Service:  f.Service,
			Severity: f.Severity,
			Status:   f.Status,
			Evidence: f.Evidence,
			Region:   f.Region,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (h *handler) exportJSON(w http.ResponseWriter, r *http.Request) {
	res, err := h.scans.ExportScan(r.Context(), chi.URLParam(r, "scanID"), string(engine.ExportJSON))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res.Data)
}

func (h *handler) exportMarkdown(w http.ResponseWriter, r *http.Request) {
	res, err := h.scans.ExportScan(r.Context(), chi.URLParam(r, "scanID"), string(engine.ExportMarkdown))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"content": res.Markdown})
}

func (h *handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.scans.ListRules(r.URL.Query().Get("service"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": rules})
}

// writeEngineError maps orchestrator errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cve *engine.CredentialValidationError
		ufe *engine.UnsupportedExportFormatError
	)
	switch {
	case errors.Is(err, engine.ErrScanNotFound):
		writeError(w, r, http.StatusNotFound, "scan not found")
	case errors.As(err, &cve):
		writeError(w, r, http.StatusUnauthorized, cve.Error())
	case errors.As(err, &ufe):
		writeError(w, r, http.StatusBadRequest, ufe.Error())
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrQueueClosed):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeJSON(w, r, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}
