package awssecurity

import (
	"context"

	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	guarddutytype "github.com/aws/aws-sdk-go-v2/service/guardduty/types"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// GuardDutyCollector emits one record per region saying whether a detector
// is enabled there. It lists detectors and then checks the first (usually
// only) one.
type GuardDutyCollector struct {
	client GuardDutyAPI
	region string
}

func NewGuardDutyCollector(client GuardDutyAPI, region string) *GuardDutyCollector {
	return &GuardDutyCollector{client: client, region: region}
}

func (c *GuardDutyCollector) Service() string      { return common.ServiceCommon }
func (c *GuardDutyCollector) ResourceType() string { return TypeGuardDuty }

func (c *GuardDutyCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	rec := newRecord("guardduty/"+c.region, TypeGuardDuty, c.region)
	rec["data_available"] = false

	listOut, err := c.client.ListDetectors(ctx, &guardduty.ListDetectorsInput{})
	if err != nil {
		return []models.ResourceRecord{rec}, nil
	}
	rec["detector_count"] = len(listOut.DetectorIds)
	if len(listOut.DetectorIds) == 0 {
		rec["data_available"] = true
		rec["enabled"] = false
		return []models.ResourceRecord{rec}, nil
	}

	detOut, err := c.client.GetDetector(ctx, &guardduty.GetDetectorInput{
		DetectorId: &listOut.DetectorIds[0],
	})
	if err != nil {
		return []models.ResourceRecord{rec}, nil
	}
	rec["data_available"] = true
	rec["enabled"] = detOut.Status == guarddutytype.DetectorStatusEnabled
	return []models.ResourceRecord{rec}, nil
}
