package rules

import "github.com/pankaj-dahiya-devops/securescope/internal/models"

const (
	typeBucket      = "s3_bucket"
	typeIAMUser     = "iam_user"
	typeRDSInstance = "rds_instance"
)

// BucketEncryptionRule flags S3 buckets without default encryption. Buckets
// whose encryption setting could not be read are collected as unencrypted.
func BucketEncryptionRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeBucket || boolean(res, "encryption_enabled") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"encryption_enabled": false,
			"bucket_region":      res.Region(),
		}))
	}
	return results
}

// UserMFARule flags IAM users that can sign in to the console without MFA.
func UserMFARule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusHigh)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeIAMUser || !boolean(res, "console_access") || boolean(res, "has_mfa") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"console_access": true,
			"has_mfa":        false,
		}))
	}
	return results
}

// RDSStorageEncryptionRule flags DB instances with unencrypted storage.
func RDSStorageEncryptionRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusFail)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeRDSInstance || boolean(res, "storage_encrypted") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"engine":            res["engine"],
			"storage_encrypted": false,
		}))
	}
	return results
}

// RDSPublicAccessRule flags DB instances reachable from the internet.
func RDSPublicAccessRule(rule models.Rule, resources []models.ResourceRecord) []Result {
	status := configString(rule, "status", models.StatusHigh)

	var results []Result
	for _, res := range resources {
		if res.Type() != typeRDSInstance || !boolean(res, "publicly_accessible") {
			continue
		}
		results = append(results, BuildResult(rule, res, status, map[string]any{
			"engine":              res["engine"],
			"publicly_accessible": true,
		}))
	}
	return results
}
