package rules

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

const (
	typeCluster   = "eks_cluster"
	typeNodegroup = "eks_nodegroup"

	defaultCurrentVersion = "1.29"
	defaultMinorDrift     = 1
)

var defaultRequiredLogs = []string{"api", "audit", "authenticator"}

// ── eks.endpoint_restriction_rule ────────────────────────────────────────────

// EndpointRestrictionRule flags clusters whose public API endpoint is open
// without a CIDR allow-list. An allow-list of only 0.0.0.0/0 (the EKS
// default) counts as no restriction.
func EndpointRestrictionRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusHigh)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeCluster || !boolean(res, "endpoint_public_access") {
			continue
		}
		cidrs := strs(res["public_access_cidrs"])
		if !unrestricted(cidrs) {
			continue
		}
		if cidrs == nil {
			cidrs = []string{}
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"public_access": true,
			"cidrs":         cidrs,
		}))
	}
	return results
}

func unrestricted(cidrs []string) bool {
	for _, c := range cidrs {
		if c != "0.0.0.0/0" {
			return false
		}
	}
	return true
}

// ── eks.control_plane_logging_rule ───────────────────────────────────────────

// ControlPlaneLoggingRule flags clusters missing any of the requiredLogs
// control-plane log categories (default api, audit, authenticator).
func ControlPlaneLoggingRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	required := configStrings(rule, "requiredLogs", defaultRequiredLogs)
	status := configString(rule, "status", models.StatusHigh)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeCluster {
			continue
		}
		enabled := make(map[string]bool)
		for _, entry := range maps(asMap(res["logging"])["clusterLogging"]) {
			if !boolean(entry, "enabled") {
				continue
			}
			for _, t := range strs(entry["types"]) {
				enabled[t] = true
			}
		}
		var missing []string
		for _, t := range required {
			if !enabled[t] {
				missing = append(missing, t)
			}
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"missing_logs": missing,
		}))
	}
	return results
}

// ── eks.version_skew_rule ────────────────────────────────────────────────────

// VersionSkewRule compares each cluster against currentVersion and each node
// group against its cluster. A major mismatch is HIGH and skips the node group
// checks; minor drift beyond minorDrift is WARN. Node group results carry the
// synthetic resource id "{cluster-id}::{nodegroup-name}".
func VersionSkewRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	current, ok := parseVersion(configString(rule, "currentVersion", defaultCurrentVersion))
	if !ok {
		return nil
	}
	drift := configInt(rule, "minorDrift", defaultMinorDrift)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeCluster {
			continue
		}
		clusterVersion := str(res, "version")
		cluster, ok := parseVersion(clusterVersion)
		if !ok {
			continue
		}
		if cluster.major != current.major {
			results = append(results, BuildResult(rule, res, models.StatusHigh, map[string]any{
				"cluster_version": clusterVersion,
				"current_version": current.String(),
			}))
			continue
		}
		if current.minor-cluster.minor > drift {
			results = append(results, BuildResult(rule, res, models.StatusWarn, map[string]any{
				"cluster_version": clusterVersion,
				"current_version": current.String(),
			}))
		}

		for _, ng := range maps(res["nodegroups"]) {
			ngVersion := str(ng, "version")
			v, ok := parseVersion(ngVersion)
			if !ok || cluster.minor-v.minor <= drift {
				continue
			}
			name := str(ng, "name")
			synthetic := models.ResourceRecord{
				"id":     res.ID() + "::" + name,
				"type":   typeNodegroup,
				"region": res.Region(),
			}
			results = append(results, BuildResult(rule, synthetic, models.StatusWarn, map[string]any{
				"cluster_version":   clusterVersion,
				"nodegroup_version": ngVersion,
				"nodegroup":         name,
			}))
		}
	}
	return results
}

type version struct{ major, minor int }

func (v version) String() string {
	return strconv.Itoa(v.major) + "." + strconv.Itoa(v.minor)
}

// parseVersion reads "major.minor" from versions such as "1.29" or
// "1.29.3-eks-1234".
func parseVersion(s string) (version, bool) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return version{}, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return version{}, false
	}
	minor, err := strconv.Atoi(strings.SplitN(parts[1], "-", 2)[0])
	if err != nil {
		return version{}, false
	}
	return version{major: major, minor: minor}, true
}

// ── eks.irsa_usage_rule ──────────────────────────────────────────────────────

// IRSAUsageRule flags clusters with no tag key prefixed "iamserviceaccount",
// the marker eksctl leaves when IAM roles for service accounts are set up.
func IRSAUsageRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeCluster {
			continue
		}
		keys := tagKeys(res["tags"])
		var found bool
		for _, k := range keys {
			if strings.HasPrefix(k, "iamserviceaccount") {
				found = true
				break
			}
		}
		if found {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"irsa_tagged": false,
			"tag_count":   len(keys),
		}))
	}
	return results
}

func tagKeys(v any) []string {
	var keys []string
	switch tags := v.(type) {
	case map[string]string:
		for k := range tags {
			keys = append(keys, k)
		}
	case map[string]any:
		for k := range tags {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
