package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/inventory"
	"github.com/pankaj-dahiya-devops/securescope/internal/rules"
)

// accountChecker is the slice of the account provider doctor exercises.
type accountChecker interface {
	ValidateCredentials(ctx context.Context, cred models.Credential) (*common.Validation, error)
	ActiveRegions(ctx context.Context, cred models.Credential) ([]string, error)
}

// DoctorResult is the structured output of securescope doctor. It can be
// serialised to JSON via --format=json or rendered as text (default).
type DoctorResult struct {
	AWS struct {
		Credentials bool            `json:"credentials_ok"`
		AccountID   string          `json:"account_id,omitempty"`
		Arn         string          `json:"arn,omitempty"`
		Permissions map[string]bool `json:"permissions,omitempty"`
		Regions     int             `json:"regions"`
		RegionsOK   bool            `json:"regions_ok"`
		Error       string          `json:"error,omitempty"`
	} `json:"aws"`

	Catalog struct {
		Valid   bool     `json:"valid"`
		Rules   int      `json:"rules"`
		Unbound []string `json:"unbound_evaluators,omitempty"`
		Error   string   `json:"error,omitempty"`
	} `json:"catalog"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var (
		creds  credentialFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check credentials, permissions and the rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cred, err := creds.credential()
			if err != nil {
				return err
			}
			result, err := runDoctor(cmd.Context(), inventory.NewProvider(), newCatalog(cfg), cred, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text is printed after the report.
				os.Exit(1)
			}
			return nil
		},
	}
	creds.register(cmd)
	cmd.Flags().StringVar(&format, "format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor collects every diagnostic, renders it to w and returns it.
// The returned error covers rendering failures only; callers inspect
// OverallHealthy for the verdict.
func runDoctor(ctx context.Context, account accountChecker, source rules.RuleSource, cred models.Credential, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, account, source, cred)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}
	return result, nil
}

func collectDoctorResult(ctx context.Context, account accountChecker, source rules.RuleSource, cred models.Credential) DoctorResult {
	var result DoctorResult

	// AWS: STS identity and permission probes, then region discovery.
	validation, err := account.ValidateCredentials(ctx, cred)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = validation.Identity["Account"]
		result.AWS.Arn = validation.Identity["Arn"]
		result.AWS.Permissions = validation.Permissions

		regions, err := account.ActiveRegions(ctx, cred)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
			result.AWS.Regions = len(regions)
		}
	}

	// Catalog: parse every file, then check each evaluator name resolves.
	all, err := source.LoadRules("")
	if err != nil {
		result.Catalog.Error = err.Error()
	} else {
		result.Catalog.Valid = true
		result.Catalog.Rules = len(all)
		registry := rules.NewDefaultRegistry()
		for _, r := range all {
			if name := r.Evaluator(); name != "" {
				if _, ok := registry.Lookup(name); !ok {
					result.Catalog.Unbound = append(result.Catalog.Unbound, r.ID+" -> "+name)
				}
			}
		}
	}

	result.OverallHealthy = result.AWS.Credentials && result.AWS.RegionsOK && result.Catalog.Valid
	return result
}

func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nAWS:")
	if !result.AWS.Credentials {
		doctorPrint(w, "STS Identity", "FAIL", result.AWS.Error)
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		perms := make([]string, 0, len(result.AWS.Permissions))
		for p := range result.AWS.Permissions {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		for _, p := range perms {
			status := "OK"
			if !result.AWS.Permissions[p] {
				status = "DENIED"
			}
			doctorPrint(w, p, status, "")
		}
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", fmt.Sprintf("%d enabled", result.AWS.Regions))
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nRule catalog:")
	if !result.Catalog.Valid {
		doctorPrint(w, "Catalog valid", "FAIL", result.Catalog.Error)
		return
	}
	doctorPrint(w, "Catalog valid", "OK", fmt.Sprintf("%d rules", result.Catalog.Rules))
	for _, u := range result.Catalog.Unbound {
		doctorPrint(w, "Unknown evaluator", "WARN", u)
	}
}

// doctorPrint writes one check line. A non-empty detail is appended in
// parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
