package rules

import (
	"strings"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

const (
	typeSecurityGroup = "security_group"
	typeInstance      = "instance"
	typeVolume        = "ebs_volume"
	typeSnapshot      = "snapshot"

	defaultInstanceAgeDays = 180
)

var (
	defaultOpenCIDRs       = []string{"0.0.0.0/0", "::/0"}
	defaultProfileKeywords = []string{"*", "AdministratorAccess"}
)

// ── ec2.security_group_rule ──────────────────────────────────────────────────

// SecurityGroupRule flags security groups with an ingress permission from a
// disallowed CIDR on a matching protocol and port. Every matching exposure of
// a group is reported in a single result.
//
// Evaluation keys: ports (empty = any port), cidrs (default 0.0.0.0/0, ::/0),
// protocol (default tcp; "*" matches any), status (default FAIL).
func SecurityGroupRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	ports := configInts(rule, "ports")
	cidrs := configStrings(rule, "cidrs", defaultOpenCIDRs)
	protocol := configString(rule, "protocol", "tcp")
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeSecurityGroup {
			continue
		}
		var exposures []map[string]any
		for _, perm := range maps(res["ip_permissions"]) {
			permProto := str(perm, "IpProtocol")
			if !protocolMatches(permProto, protocol) {
				continue
			}
			from, hasFrom := number(perm["FromPort"])
			to, hasTo := number(perm["ToPort"])
			if len(ports) > 0 && !(hasFrom && containsInt(ports, from)) && !(hasTo && containsInt(ports, to)) {
				continue
			}
			for _, cidr := range permissionCIDRs(perm) {
				if !containsString(cidrs, cidr) {
					continue
				}
				exposures = append(exposures, map[string]any{
					"protocol":  permProto,
					"from_port": portValue(from, hasFrom),
					"to_port":   portValue(to, hasTo),
					"cidr":      cidr,
				})
			}
		}
		if len(exposures) == 0 {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"exposures":      exposures,
			"security_group": res["name"],
			"description":    res["description"],
		}))
	}
	return results
}

func protocolMatches(permProto, want string) bool {
	return want == "*" || permProto == "-1" || permProto == want
}

// permissionCIDRs returns the IPv4 then IPv6 source ranges of a permission.
func permissionCIDRs(perm map[string]any) []string {
	var out []string
	for _, r := range maps(perm["IpRanges"]) {
		if c := str(r, "CidrIp"); c != "" {
			out = append(out, c)
		}
	}
	for _, r := range maps(perm["Ipv6Ranges"]) {
		if c := str(r, "CidrIpv6"); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func portValue(port int, ok bool) any {
	if !ok {
		return nil
	}
	return port
}

// ── ec2.instance_metadata_rule ───────────────────────────────────────────────

// InstanceMetadataRule flags instances whose metadata service does not
// require session tokens (IMDSv2).
func InstanceMetadataRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeInstance {
			continue
		}
		tokens := str(asMap(res["metadata_options"]), "HttpTokens")
		if tokens == "required" {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"http_tokens": tokens,
			"public_ip":   str(res, "public_ip") != "",
		}))
	}
	return results
}

// ── ec2.instance_public_exposure ─────────────────────────────────────────────

// InstancePublicExposure flags instances that have a public IP and either do
// not enforce IMDSv2 or have at least one named security group attached.
func InstancePublicExposure(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusCritical)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeInstance {
			continue
		}
		publicIP := str(res, "public_ip")
		if publicIP == "" {
			continue
		}
		tokens := str(asMap(res["metadata_options"]), "HttpTokens")
		groups := []string{}
		for _, sg := range maps(res["security_groups"]) {
			if name := str(sg, "GroupName"); name != "" {
				groups = append(groups, name)
			}
		}
		if tokens == "required" && len(groups) == 0 {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"public_ip":       publicIP,
			"metadata_tokens": tokens,
			"security_groups": groups,
		}))
	}
	return results
}

// ── ec2.volume_encryption_rule ───────────────────────────────────────────────

// VolumeEncryptionRule flags EBS volumes that are not encrypted.
func VolumeEncryptionRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeVolume || boolean(res, "encrypted") {
			continue
		}
		attached := []string{}
		for _, a := range maps(res["attachments"]) {
			if id := str(a, "InstanceId"); id != "" {
				attached = append(attached, id)
			}
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"attachments": attached,
			"kms_key_id":  res["kms_key_id"],
		}))
	}
	return results
}

// ── ec2.snapshot_sharing_rule ────────────────────────────────────────────────

// SnapshotSharingRule flags snapshots shared with any other account.
func SnapshotSharingRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeSnapshot {
			continue
		}
		shared := strs(res["shared_accounts"])
		if len(shared) == 0 {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"shared_accounts": shared,
		}))
	}
	return results
}

// ── ec2.instance_age_rule ────────────────────────────────────────────────────

// InstanceAgeRule flags instances older than ageDays (default 180).
func InstanceAgeRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	threshold := configInt(rule, "ageDays", defaultInstanceAgeDays)
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeInstance {
			continue
		}
		age, ok := number(res["age_days"])
		if !ok || age <= threshold {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"age_days":  age,
			"threshold": threshold,
		}))
	}
	return results
}

// ── ec2.instance_profile_rule ────────────────────────────────────────────────

// InstanceProfileRule flags instance profile ARNs containing a wildcard or a
// broad administrative keyword, one result per matching keyword.
func InstanceProfileRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	keywords := configStrings(rule, "keywords", defaultProfileKeywords)
	status := configString(rule, "status", models.StatusCritical)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeInstance {
			continue
		}
		arn := str(res, "iam_instance_profile")
		if arn == "" {
			arn = str(asMap(res["iam_instance_profile"]), "Arn")
		}
		if arn == "" {
			continue
		}
		for _, kw := range keywords {
			if !strings.Contains(arn, kw) {
				continue
			}
			results = append(results, BuildResult(rule, res, status, map[string]any{
				"instance_profile": arn,
				"keyword":          kw,
			}))
		}
	}
	return results
}

// ── ec2.termination_protection_rule ──────────────────────────────────────────

// TerminationProtectionRule flags instances whose termination protection is
// known to be disabled. Instances where the attribute could not be read are
// collected with protection=false and are therefore flagged too.
func TerminationProtectionRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusWarn)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeInstance {
			continue
		}
		protected, ok := res["termination_protection"].(bool)
		if !ok || protected {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"termination_protection": false,
		}))
	}
	return results
}
