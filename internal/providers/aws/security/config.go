package awssecurity

import (
	"context"

	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// ConfigRecorderCollector emits one record per region saying whether at
// least one AWS Config recorder is actively recording.
type ConfigRecorderCollector struct {
	client ConfigAPI
	region string
}

func NewConfigRecorderCollector(client ConfigAPI, region string) *ConfigRecorderCollector {
	return &ConfigRecorderCollector{client: client, region: region}
}

func (c *ConfigRecorderCollector) Service() string      { return common.ServiceCommon }
func (c *ConfigRecorderCollector) ResourceType() string { return TypeConfigRecorder }

func (c *ConfigRecorderCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	rec := newRecord("config/"+c.region, TypeConfigRecorder, c.region)
	out, err := c.client.DescribeConfigurationRecorderStatus(ctx, &configsvc.DescribeConfigurationRecorderStatusInput{})
	if err != nil {
		rec["data_available"] = false
		return []models.ResourceRecord{rec}, nil
	}

	recording := false
	for _, status := range out.ConfigurationRecordersStatus {
		if status.Recording {
			recording = true
			break
		}
	}
	rec["data_available"] = true
	rec["recording"] = recording
	rec["recorder_count"] = len(out.ConfigurationRecordersStatus)
	return []models.ResourceRecord{rec}, nil
}
