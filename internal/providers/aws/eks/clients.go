package eks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
)

// EKSAPI is the subset of EKS API operations used by the cluster collector.
// Using a narrow interface instead of the full SDK client makes unit testing
// trivial: create a struct that satisfies the interface and return canned data.
type EKSAPI interface {
	awseks.ListClustersAPIClient
	awseks.ListNodegroupsAPIClient

	DescribeCluster(
		ctx context.Context,
		params *awseks.DescribeClusterInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeClusterOutput, error)

	DescribeNodegroup(
		ctx context.Context,
		params *awseks.DescribeNodegroupInput,
		optFns ...func(*awseks.Options),
	) (*awseks.DescribeNodegroupOutput, error)
}

// NewClient returns the production EKS client for cfg.
func NewClient(cfg aws.Config) EKSAPI {
	return awseks.NewFromConfig(cfg)
}
