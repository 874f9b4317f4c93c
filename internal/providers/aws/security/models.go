// Package awssecurity implements the AWS resource collectors for EC2, S3,
// IAM, RDS and the account posture services (CloudTrail, GuardDuty, Config).
//
// Every collector normalizes SDK responses into models.ResourceRecord maps.
// Collectors never apply business rules or produce findings; that is the
// job of the rules package.
package awssecurity

import (
	"time"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Resource types emitted by this package. They must match the types the
// evaluators in internal/rules filter on.
const (
	TypeSecurityGroup  = "security_group"
	TypeInstance       = "instance"
	TypeVolume         = "ebs_volume"
	TypeSnapshot       = "snapshot"
	TypeBucket         = "s3_bucket"
	TypeIAMUser        = "iam_user"
	TypeRootAccount    = "iam_root_account"
	TypeRDSInstance    = "rds_instance"
	TypeCloudTrail     = "cloudtrail_status"
	TypeGuardDuty      = "guardduty_status"
	TypeConfigRecorder = "config_recorder_status"
)

func newRecord(id, typ, region string) models.ResourceRecord {
	return models.ResourceRecord{"id": id, "type": typ, "region": region}
}

// timestamp renders an optional SDK time as RFC 3339, or "" when unset.
func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
