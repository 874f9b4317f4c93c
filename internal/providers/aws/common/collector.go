package common

import (
	"context"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Service keys. They select the rule catalog file evaluated against a
// collector's records.
const (
	ServiceEC2    = "EC2"
	ServiceEKS    = "EKS"
	ServiceRDS    = "RDS"
	ServiceIAM    = "IAM"
	ServiceCommon = "COMMON"
)

// Collector fetches one kind of resource from one AWS service in one region
// and normalizes it into ResourceRecords.
//
// Collect returns an error only when the primary listing call fails. Failed
// per-item lookups degrade the affected field to a safe default instead.
// Collectors must never apply business rules or produce findings.
type Collector interface {
	// Service is the catalog key the collector's records are evaluated under.
	Service() string

	// ResourceType is the "type" attribute of every record produced.
	ResourceType() string

	Collect(ctx context.Context) ([]models.ResourceRecord, error)
}
