package eks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// ResourceType is the type of every record ClusterCollector produces.
const ResourceType = "eks_cluster"

// ClusterCollector lists the EKS clusters in a region and describes each one
// together with its managed node groups. Records are keyed by cluster ARN.
type ClusterCollector struct {
	client EKSAPI
	region string
}

// NewClusterCollector returns a collector for region.
func NewClusterCollector(client EKSAPI, region string) *ClusterCollector {
	return &ClusterCollector{client: client, region: region}
}

func (c *ClusterCollector) Service() string      { return common.ServiceEKS }
func (c *ClusterCollector) ResourceType() string { return ResourceType }

// Collect fails only when ListClusters or DescribeCluster fails. Node group
// lookups that fail leave the cluster with the node groups read so far.
func (c *ClusterCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := awseks.NewListClustersPaginator(c.client, &awseks.ListClustersInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list EKS clusters in %s: %w", c.region, err)
		}
		for _, name := range page.Clusters {
			rec, err := c.describe(ctx, name)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (c *ClusterCollector) describe(ctx context.Context, name string) (models.ResourceRecord, error) {
	out, err := c.client.DescribeCluster(ctx, &awseks.DescribeClusterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("describe EKS cluster %q: %w", name, err)
	}
	if out.Cluster == nil {
		return nil, fmt.Errorf("describe EKS cluster %q: empty response", name)
	}
	cl := out.Cluster

	id := aws.ToString(cl.Arn)
	if id == "" {
		id = name
	}
	rec := models.ResourceRecord{
		"id":      id,
		"type":    ResourceType,
		"region":  c.region,
		"name":    name,
		"version": aws.ToString(cl.Version),
		"status":  string(cl.Status),
	}

	if vpc := cl.ResourcesVpcConfig; vpc != nil {
		rec["endpoint_public_access"] = vpc.EndpointPublicAccess
		rec["endpoint_private_access"] = vpc.EndpointPrivateAccess
		cidrs := append([]string{}, vpc.PublicAccessCidrs...)
		rec["public_access_cidrs"] = cidrs
	}

	rec["logging"] = map[string]any{"clusterLogging": clusterLogging(cl.Logging)}

	if cl.Identity != nil && cl.Identity.Oidc != nil {
		rec["oidc_issuer"] = aws.ToString(cl.Identity.Oidc.Issuer)
	}

	tags := make(map[string]string, len(cl.Tags))
	for k, v := range cl.Tags {
		tags[k] = v
	}
	rec["tags"] = tags
	rec["nodegroups"] = c.nodegroups(ctx, name)
	return rec, nil
}

func clusterLogging(l *ekstypes.Logging) []map[string]any {
	if l == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(l.ClusterLogging))
	for _, setup := range l.ClusterLogging {
		types := make([]string, 0, len(setup.Types))
		for _, t := range setup.Types {
			types = append(types, string(t))
		}
		out = append(out, map[string]any{
			"enabled": aws.ToBool(setup.Enabled),
			"types":   types,
		})
	}
	return out
}

func (c *ClusterCollector) nodegroups(ctx context.Context, cluster string) []map[string]any {
	groups := []map[string]any{}
	paginator := awseks.NewListNodegroupsPaginator(c.client, &awseks.ListNodegroupsInput{
		ClusterName: aws.String(cluster),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return groups
		}
		for _, ng := range page.Nodegroups {
			out, err := c.client.DescribeNodegroup(ctx, &awseks.DescribeNodegroupInput{
				ClusterName:   aws.String(cluster),
				NodegroupName: aws.String(ng),
			})
			if err != nil || out.Nodegroup == nil {
				continue
			}
			groups = append(groups, map[string]any{
				"name":    ng,
				"version": aws.ToString(out.Nodegroup.Version),
				"status":  string(out.Nodegroup.Status),
			})
		}
	}
	return groups
}
