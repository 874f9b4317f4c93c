package rules

import (
	"fmt"
	"sort"
)

// EvaluatorRegistry maps catalog evaluator names ("ec2.security_group_rule")
// to their implementations. It is populated once at startup and read-only
// afterwards, so lookups need no locking.
// Register panics on duplicate names to catch wiring mistakes at startup.
type EvaluatorRegistry struct {
	funcs map[string]EvaluatorFunc
}

// NewEvaluatorRegistry returns an empty registry.
func NewEvaluatorRegistry() *EvaluatorRegistry {
	return &EvaluatorRegistry{funcs: make(map[string]EvaluatorFunc)}
}

// NewDefaultRegistry returns a registry with every bundled evaluator.
func NewDefaultRegistry() *EvaluatorRegistry {
	r := NewEvaluatorRegistry()

	r.Register("ec2.security_group_rule", SecurityGroupRule)
	r.Register("ec2.instance_metadata_rule", InstanceMetadataRule)
	r.Register("ec2.instance_public_exposure", InstancePublicExposure)
	r.Register("ec2.volume_encryption_rule", VolumeEncryptionRule)
	r.Register("ec2.snapshot_sharing_rule", SnapshotSharingRule)
	r.Register("ec2.instance_age_rule", InstanceAgeRule)
	r.Register("ec2.instance_profile_rule", InstanceProfileRule)
	r.Register("ec2.termination_protection_rule", TerminationProtectionRule)

	r.Register("eks.endpoint_restriction_rule", EndpointRestrictionRule)
	r.Register("eks.control_plane_logging_rule", ControlPlaneLoggingRule)
	r.Register("eks.version_skew_rule", VersionSkewRule)
	r.Register("eks.irsa_usage_rule", IRSAUsageRule)

	r.Register("common.bucket_encryption_rule", BucketEncryptionRule)
	r.Register("iam.user_mfa_rule", UserMFARule)
	r.Register("rds.storage_encryption_rule", RDSStorageEncryptionRule)
	r.Register("rds.public_access_rule", RDSPublicAccessRule)

	r.Register("common.cloudtrail_rule", CloudTrailRule)
	r.Register("common.guardduty_rule", GuardDutyRule)
	r.Register("common.config_recorder_rule", ConfigRecorderRule)
	r.Register("iam.root_account_rule", RootAccountRule)

	return r
}

// Register binds name to fn. Panics if name is already registered.
func (r *EvaluatorRegistry) Register(name string, fn EvaluatorFunc) {
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("duplicate evaluator: %q", name))
	}
	r.funcs[name] = fn
}

// Lookup returns the evaluator registered under name.
func (r *EvaluatorRegistry) Lookup(name string) (EvaluatorFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns every registered evaluator name, sorted.
func (r *EvaluatorRegistry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
