package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/engine"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/output"
	"github.com/pankaj-dahiya-devops/securescope/internal/render"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
	"github.com/pankaj-dahiya-devops/securescope/internal/version"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "securescope",
		Short:         "SecureScope: AWS account security audit scans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (env: SECURESCOPE_*)")

	root.AddCommand(
		newServeCmd(opts),
		newScanCmd(opts),
		newStatusCmd(opts),
		newSummaryCmd(opts),
		newFindingsCmd(opts),
		newExportCmd(opts),
		newRulesCmd(opts),
		newDoctorCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}

// credentialFlags binds the scan credential flags. Unset flags fall back to
// the standard AWS_* environment variables.
type credentialFlags struct {
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
	roleARN         string
	externalID      string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.accessKeyID, "access-key-id", "", "AWS access key id (default: $AWS_ACCESS_KEY_ID)")
	cmd.Flags().StringVar(&f.secretAccessKey, "secret-access-key", "", "AWS secret access key (default: $AWS_SECRET_ACCESS_KEY)")
	cmd.Flags().StringVar(&f.sessionToken, "session-token", "", "AWS session token (default: $AWS_SESSION_TOKEN)")
	cmd.Flags().StringVar(&f.roleARN, "role-arn", "", "Role to assume in the audited account")
	cmd.Flags().StringVar(&f.externalID, "external-id", "", "External id for the role assumption")
}

func (f *credentialFlags) credential() (models.Credential, error) {
	cred := models.Credential{
		AccessKeyID:     firstNonEmpty(f.accessKeyID, os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: firstNonEmpty(f.secretAccessKey, os.Getenv("AWS_SECRET_ACCESS_KEY")),
		SessionToken:    firstNonEmpty(f.sessionToken, os.Getenv("AWS_SESSION_TOKEN")),
		RoleARN:         f.roleARN,
		ExternalID:      f.externalID,
	}
	if cred.AccessKeyID == "" || cred.SecretAccessKey == "" {
		return cred, fmt.Errorf("access key id and secret access key are required")
	}
	return cred, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// withApp loads config, opens the app and runs fn, closing the app after.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig(opts.configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		creds   credentialFlags
		regions []string
		format  string
		colored bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan in the foreground and print its findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := creds.credential()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.syncCatalog(ctx); err != nil {
					return err
				}

				inline := &dispatch.Inline{}
				orch := a.orchestrator(inline, nil)
				inline.Handler = orch.ExecuteScan

				scanID, err := orch.StartScan(ctx, engine.ScanRequest{Credential: cred, Regions: regions})
				if err != nil {
					return fmt.Errorf("scan failed: %w", err)
				}
				return printScan(ctx, cmd.OutOrStdout(), orch, scanID, format, colored)
			})
		},
	}

	creds.register(cmd)
	cmd.Flags().StringSliceVar(&regions, "region", nil, `Region(s) to scan (default: "all" enabled regions)`)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json or md")
	cmd.Flags().BoolVar(&colored, "color", false, "Colorize severities in table output")
	return cmd
}

// printScan renders a finished scan as a table, a JSON export or a Markdown
// report.
func printScan(ctx context.Context, w io.Writer, orch *engine.Orchestrator, scanID, format string, colored bool) error {
	if format != "table" {
		return printExport(ctx, w, orch, scanID, format)
	}
	summary, err := orch.GetSummary(ctx, scanID)
	if err != nil {
		return err
	}
	findings, err := orch.ListFindings(ctx, scanID, store.FindingFilter{})
	if err != nil {
		return err
	}
	output.RenderSummary(w, summary)
	fmt.Fprintln(w)
	output.RenderTable(w, findings, output.TableOptions{Colored: colored, IncludeHash: true})
	return nil
}

func printExport(ctx context.Context, w io.Writer, orch *engine.Orchestrator, scanID, format string) error {
	res, err := orch.ExportScan(ctx, scanID, format)
	if err != nil {
		return err
	}
	if res.Format == engine.ExportMarkdown {
		_, err := fmt.Fprint(w, res.Markdown)
		return err
	}
	return render.WriteJSON(w, res.Data)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status <scan-id>",
		Short: "Show per-region progress of a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				status, err := a.orchestrator(nil, nil).GetStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if format == "json" {
					return render.WriteJSON(cmd.OutOrStdout(), status)
				}
				output.RenderStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "summary <scan-id>",
		Short: "Show finding totals by severity and service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				summary, err := a.orchestrator(nil, nil).GetSummary(ctx, args[0])
				if err != nil {
					return err
				}
				if format == "json" {
					return render.WriteJSON(cmd.OutOrStdout(), summary)
				}
				output.RenderSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newFindingsCmd(opts *rootOptions) *cobra.Command {
	var (
		filter  store.FindingFilter
		format  string
		colored bool
	)
	cmd := &cobra.Command{
		Use:   "findings <scan-id>",
		Short: "List a scan's findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				findings, err := a.orchestrator(nil, nil).ListFindings(ctx, args[0], filter)
				if err != nil {
					return err
				}
				if format == "json" {
					return render.WriteJSON(cmd.OutOrStdout(), findings)
				}
				output.RenderTable(cmd.OutOrStdout(), findings, output.TableOptions{Colored: colored, IncludeHash: true})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.Service, "service", "", "Only findings of this service (e.g. EC2)")
	cmd.Flags().StringVar(&filter.Severity, "severity", "", "Only findings of this severity (e.g. HIGH)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&colored, "color", false, "Colorize severities")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <scan-id>",
		Short: "Export a scan as JSON or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				w := cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("create export file %q: %w", out, err)
					}
					defer f.Close()
					w = f
				}
				return printExport(ctx, w, a.orchestrator(nil, nil), args[0], format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json or md")
	cmd.Flags().StringVar(&out, "output", "", "Write the export to this file instead of stdout")
	return cmd
}

// newRulesCmd lists the catalog. It reads the catalog only and never opens
// the database.
func newRulesCmd(opts *rootOptions) *cobra.Command {
	var (
		service string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List rule catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rules, err := newCatalog(cfg).LoadRules(service)
			if err != nil {
				return err
			}
			if format == "json" {
				return render.WriteJSON(cmd.OutOrStdout(), rules)
			}
			output.RenderRules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Only rules of this service (e.g. eks)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}
