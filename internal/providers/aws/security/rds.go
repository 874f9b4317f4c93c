package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// RDSInstanceCollector lists DB instances with their encryption and public
// accessibility flags.
type RDSInstanceCollector struct {
	client RDSAPI
	region string
}

func NewRDSInstanceCollector(client RDSAPI, region string) *RDSInstanceCollector {
	return &RDSInstanceCollector{client: client, region: region}
}

func (c *RDSInstanceCollector) Service() string      { return common.ServiceRDS }
func (c *RDSInstanceCollector) ResourceType() string { return TypeRDSInstance }

func (c *RDSInstanceCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := rdssvc.NewDescribeDBInstancesPaginator(c.client, &rdssvc.DescribeDBInstancesInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB instances in %s: %w", c.region, err)
		}
		for _, db := range page.DBInstances {
			rec := newRecord(aws.ToString(db.DBInstanceIdentifier), TypeRDSInstance, c.region)
			rec["arn"] = aws.ToString(db.DBInstanceArn)
			rec["engine"] = aws.ToString(db.Engine)
			rec["engine_version"] = aws.ToString(db.EngineVersion)
			rec["storage_encrypted"] = aws.ToBool(db.StorageEncrypted)
			rec["publicly_accessible"] = aws.ToBool(db.PubliclyAccessible)
			rec["kms_key_id"] = aws.ToString(db.KmsKeyId)
			records = append(records, rec)
		}
	}
	return records, nil
}
