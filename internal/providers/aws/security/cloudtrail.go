package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// CloudTrailCollector emits one account-level record saying whether a
// multi-region trail exists. IncludeShadowTrails is false so only trails
// owned by this account are counted.
type CloudTrailCollector struct {
	client CloudTrailAPI
}

func NewCloudTrailCollector(client CloudTrailAPI) *CloudTrailCollector {
	return &CloudTrailCollector{client: client}
}

func (c *CloudTrailCollector) Service() string      { return common.ServiceCommon }
func (c *CloudTrailCollector) ResourceType() string { return TypeCloudTrail }

func (c *CloudTrailCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	rec := newRecord("cloudtrail", TypeCloudTrail, models.GlobalRegion)
	out, err := c.client.DescribeTrails(ctx, &cloudtrailsvc.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		rec["data_available"] = false
		return []models.ResourceRecord{rec}, nil
	}

	multi := false
	names := make([]string, 0, len(out.TrailList))
	for _, trail := range out.TrailList {
		names = append(names, aws.ToString(trail.Name))
		if aws.ToBool(trail.IsMultiRegionTrail) {
			multi = true
		}
	}
	rec["data_available"] = true
	rec["multi_region_trail"] = multi
	rec["trail_count"] = len(out.TrailList)
	rec["trails"] = names
	return []models.ResourceRecord{rec}, nil
}
