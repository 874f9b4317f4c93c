package awssecurity

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// InstanceCollector lists EC2 instances that are not terminated. Besides
// the DescribeInstances fields it computes age_days and resolves
// termination protection with one DescribeInstanceAttribute call per
// instance.
type InstanceCollector struct {
	client EC2API
	region string
	now    func() time.Time
}

func NewInstanceCollector(client EC2API, region string) *InstanceCollector {
	return &InstanceCollector{client: client, region: region, now: time.Now}
}

func (c *InstanceCollector) Service() string      { return common.ServiceEC2 }
func (c *InstanceCollector) ResourceType() string { return TypeInstance }

func (c *InstanceCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := ec2svc.NewDescribeInstancesPaginator(c.client, &ec2svc.DescribeInstancesInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances in %s: %w", c.region, err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				records = append(records, c.record(ctx, inst))
			}
		}
	}
	return records, nil
}

func (c *InstanceCollector) record(ctx context.Context, inst ec2types.Instance) models.ResourceRecord {
	id := aws.ToString(inst.InstanceId)
	rec := newRecord(id, TypeInstance, c.region)

	if inst.State != nil {
		rec["state"] = string(inst.State.Name)
	}
	rec["instance_type"] = string(inst.InstanceType)
	rec["public_ip"] = aws.ToString(inst.PublicIpAddress)

	meta := map[string]any{}
	if inst.MetadataOptions != nil {
		meta["HttpTokens"] = string(inst.MetadataOptions.HttpTokens)
		meta["HttpEndpoint"] = string(inst.MetadataOptions.HttpEndpoint)
	}
	rec["metadata_options"] = meta

	groups := make([]map[string]any, 0, len(inst.SecurityGroups))
	for _, g := range inst.SecurityGroups {
		groups = append(groups, map[string]any{
			"GroupId":   aws.ToString(g.GroupId),
			"GroupName": aws.ToString(g.GroupName),
		})
	}
	rec["security_groups"] = groups

	if inst.IamInstanceProfile != nil {
		rec["iam_instance_profile"] = map[string]any{
			"Arn": aws.ToString(inst.IamInstanceProfile.Arn),
			"Id":  aws.ToString(inst.IamInstanceProfile.Id),
		}
	}

	if inst.LaunchTime != nil {
		rec["launch_time"] = timestamp(inst.LaunchTime)
		rec["age_days"] = int(c.now().Sub(*inst.LaunchTime).Hours() / 24)
	}

	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	rec["tags"] = tags

	rec["termination_protection"] = c.terminationProtected(ctx, id)
	return rec
}

// terminationProtected reports the disableApiTermination attribute. Errors
// are treated as not protected.
func (c *InstanceCollector) terminationProtected(ctx context.Context, id string) bool {
	out, err := c.client.DescribeInstanceAttribute(ctx, &ec2svc.DescribeInstanceAttributeInput{
		InstanceId: aws.String(id),
		Attribute:  ec2types.InstanceAttributeNameDisableApiTermination,
	})
	if err != nil || out.DisableApiTermination == nil {
		return false
	}
	return aws.ToBool(out.DisableApiTermination.Value)
}
