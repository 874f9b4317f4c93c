package rules

import "github.com/pankaj-dahiya-devops/securescope/internal/models"

// Account posture records are one per account (or per region) and carry a
// data_available flag. When the status call itself failed the flag is false
// and no rule fires, so a missing permission never reads as a disabled
// control.
const (
	typeCloudTrail     = "cloudtrail_status"
	typeGuardDuty      = "guardduty_status"
	typeConfigRecorder = "config_recorder_status"
	typeRootAccount    = "iam_root_account"
)

// ── common.cloudtrail_rule ───────────────────────────────────────────────────

// CloudTrailRule flags accounts with no multi-region trail.
func CloudTrailRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeCloudTrail || !boolean(res, "data_available") || boolean(res, "multi_region_trail") {
			continue
		}
		trails, _ := number(res["trail_count"])
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"multi_region_trail": false,
			"trail_count":        trails,
		}))
	}
	return results
}

// ── common.guardduty_rule ────────────────────────────────────────────────────

// GuardDutyRule flags regions without an enabled GuardDuty detector.
func GuardDutyRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeGuardDuty || !boolean(res, "data_available") || boolean(res, "enabled") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"detector_enabled": false,
			"detector_count":   res["detector_count"],
		}))
	}
	return results
}

// ── common.config_recorder_rule ──────────────────────────────────────────────

// ConfigRecorderRule flags regions where no AWS Config recorder is recording.
func ConfigRecorderRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeConfigRecorder || !boolean(res, "data_available") || boolean(res, "recording") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"recording":      false,
			"recorder_count": res["recorder_count"],
		}))
	}
	return results
}

// ── iam.root_account_rule ────────────────────────────────────────────────────

// RootAccountRule flags a root user that has access keys or lacks MFA.
// One finding per account; the evidence names both conditions.
func RootAccountRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusCritical)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeRootAccount || !boolean(res, "data_available") {
			continue
		}
		keys := boolean(res, "access_keys_present")
		mfa := boolean(res, "mfa_enabled")
		if !keys && mfa {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"access_keys_present": keys,
			"mfa_enabled":         mfa,
		}))
	}
	return results
}
