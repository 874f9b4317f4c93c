package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// ── security groups ──────────────────────────────────────────────────────────

// SecurityGroupCollector lists every security group in a region. Each
// record carries the raw inbound permissions, both IPv4 and IPv6 ranges.
type SecurityGroupCollector struct {
	client EC2API
	region string
}

func NewSecurityGroupCollector(client EC2API, region string) *SecurityGroupCollector {
	return &SecurityGroupCollector{client: client, region: region}
}

func (c *SecurityGroupCollector) Service() string      { return common.ServiceEC2 }
func (c *SecurityGroupCollector) ResourceType() string { return TypeSecurityGroup }

func (c *SecurityGroupCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := ec2svc.NewDescribeSecurityGroupsPaginator(c.client, &ec2svc.DescribeSecurityGroupsInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups in %s: %w", c.region, err)
		}
		for _, sg := range page.SecurityGroups {
			rec := newRecord(aws.ToString(sg.GroupId), TypeSecurityGroup, c.region)
			rec["name"] = aws.ToString(sg.GroupName)
			rec["description"] = aws.ToString(sg.Description)
			rec["vpc_id"] = aws.ToString(sg.VpcId)
			rec["ip_permissions"] = ipPermissions(sg.IpPermissions)
			records = append(records, rec)
		}
	}
	return records, nil
}

// ipPermissions keeps the SDK field names so catalog configs and evidence
// read the same as the AWS console JSON.
func ipPermissions(perms []ec2types.IpPermission) []map[string]any {
	out := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		v4 := make([]map[string]any, 0, len(p.IpRanges))
		for _, r := range p.IpRanges {
			v4 = append(v4, map[string]any{"CidrIp": aws.ToString(r.CidrIp)})
		}
		v6 := make([]map[string]any, 0, len(p.Ipv6Ranges))
		for _, r := range p.Ipv6Ranges {
			v6 = append(v6, map[string]any{"CidrIpv6": aws.ToString(r.CidrIpv6)})
		}
		perm := map[string]any{
			"IpProtocol": aws.ToString(p.IpProtocol),
			"IpRanges":   v4,
			"Ipv6Ranges": v6,
		}
		// Absent for protocol -1; the rule treats that as all ports.
		if p.FromPort != nil {
			perm["FromPort"] = int(*p.FromPort)
		}
		if p.ToPort != nil {
			perm["ToPort"] = int(*p.ToPort)
		}
		out = append(out, perm)
	}
	return out
}

// ── EBS volumes ──────────────────────────────────────────────────────────────

// VolumeCollector lists EBS volumes with their encryption state and
// attachments.
type VolumeCollector struct {
	client EC2API
	region string
}

func NewVolumeCollector(client EC2API, region string) *VolumeCollector {
	return &VolumeCollector{client: client, region: region}
}

func (c *VolumeCollector) Service() string      { return common.ServiceEC2 }
func (c *VolumeCollector) ResourceType() string { return TypeVolume }

func (c *VolumeCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := ec2svc.NewDescribeVolumesPaginator(c.client, &ec2svc.DescribeVolumesInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes in %s: %w", c.region, err)
		}
		for _, v := range page.Volumes {
			attachments := make([]map[string]any, 0, len(v.Attachments))
			for _, a := range v.Attachments {
				attachments = append(attachments, map[string]any{
					"InstanceId": aws.ToString(a.InstanceId),
					"Device":     aws.ToString(a.Device),
				})
			}
			rec := newRecord(aws.ToString(v.VolumeId), TypeVolume, c.region)
			rec["encrypted"] = aws.ToBool(v.Encrypted)
			rec["kms_key_id"] = aws.ToString(v.KmsKeyId)
			rec["size_gb"] = int(aws.ToInt32(v.Size))
			rec["state"] = string(v.State)
			rec["attachments"] = attachments
			records = append(records, rec)
		}
	}
	return records, nil
}

// ── snapshots ────────────────────────────────────────────────────────────────

// SnapshotCollector lists snapshots owned by the account and resolves who
// they are shared with.
type SnapshotCollector struct {
	client EC2API
	region string
}

func NewSnapshotCollector(client EC2API, region string) *SnapshotCollector {
	return &SnapshotCollector{client: client, region: region}
}

func (c *SnapshotCollector) Service() string      { return common.ServiceEC2 }
func (c *SnapshotCollector) ResourceType() string { return TypeSnapshot }

func (c *SnapshotCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := ec2svc.NewDescribeSnapshotsPaginator(c.client, &ec2svc.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe snapshots in %s: %w", c.region, err)
		}
		for _, s := range page.Snapshots {
			id := aws.ToString(s.SnapshotId)
			rec := newRecord(id, TypeSnapshot, c.region)
			rec["encrypted"] = aws.ToBool(s.Encrypted)
			rec["volume_id"] = aws.ToString(s.VolumeId)
			rec["start_time"] = timestamp(s.StartTime)
			rec["shared_accounts"] = c.sharedWith(ctx, id)
			records = append(records, rec)
		}
	}
	return records, nil
}

// sharedWith returns the account ids (or "all" for a public snapshot) that
// may create volumes from the snapshot. Errors are treated as not shared.
func (c *SnapshotCollector) sharedWith(ctx context.Context, id string) []string {
	out, err := c.client.DescribeSnapshotAttribute(ctx, &ec2svc.DescribeSnapshotAttributeInput{
		SnapshotId: aws.String(id),
		Attribute:  ec2types.SnapshotAttributeNameCreateVolumePermission,
	})
	shared := []string{}
	if err != nil {
		return shared
	}
	for _, p := range out.CreateVolumePermissions {
		switch {
		case p.Group == ec2types.PermissionGroupAll:
			shared = append(shared, "all")
		case p.UserId != nil:
			shared = append(shared, aws.ToString(p.UserId))
		}
	}
	return shared
}
