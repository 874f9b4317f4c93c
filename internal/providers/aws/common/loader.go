package common

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Probed permission names recorded on every ScanRun.
const (
	PermGetCallerIdentity      = "sts:GetCallerIdentity"
	PermDescribeSecurityGroups = "ec2:DescribeSecurityGroups"
	PermListClusters           = "eks:ListClusters"
	PermListAllMyBuckets       = "s3:ListAllMyBuckets"
)

// Validation is the outcome of a successful credential check.
type Validation struct {
	// Identity holds the STS caller identity (Account, Arn, UserId).
	Identity map[string]string

	// Permissions maps each probed permission to whether the probe call
	// succeeded. Used for diagnostics only; never blocks a scan.
	Permissions map[string]bool
}

// DefaultAWSClientProvider is the production entry point for credential
// validation and region discovery.
//
// Inject a custom ClientFactory and ConfigLoader via
// NewDefaultAWSClientProviderWithFactory to replace real SDK clients with
// mocks in unit tests.
type DefaultAWSClientProvider struct {
	factory ClientFactory
	load    ConfigLoader
}

// NewDefaultAWSClientProvider returns a provider backed by the real AWS SDK.
func NewDefaultAWSClientProvider() *DefaultAWSClientProvider {
	return &DefaultAWSClientProvider{factory: NewClientSet, load: LoadConfig}
}

// NewDefaultAWSClientProviderWithFactory returns a provider that uses f to
// create its ClientSet and load to build configs. Pass mocks in tests.
func NewDefaultAWSClientProviderWithFactory(f ClientFactory, load ConfigLoader) *DefaultAWSClientProvider {
	return &DefaultAWSClientProvider{factory: f, load: load}
}

// Config returns an aws.Config for cred scoped to region.
func (p *DefaultAWSClientProvider) Config(ctx context.Context, cred models.Credential, region string) (aws.Config, error) {
	return p.load(ctx, cred, region)
}

// ValidateCredentials confirms cred is usable by calling STS
// GetCallerIdentity, then probes a fixed set of read-only permissions.
// Only the identity call can fail validation.
func (p *DefaultAWSClientProvider) ValidateCredentials(ctx context.Context, cred models.Credential) (*Validation, error) {
	cfg, err := p.load(ctx, cred, HomeRegion)
	if err != nil {
		return nil, err
	}
	clients := p.factory(cfg)

	identity, err := resolveIdentity(ctx, clients.STS)
	if err != nil {
		return nil, err
	}
	return &Validation{
		Identity:    identity,
		Permissions: probePermissions(ctx, clients),
	}, nil
}

// ActiveRegions returns every region enabled for the account, sorted.
// Regions that require opt-in and have not been opted into are excluded.
func (p *DefaultAWSClientProvider) ActiveRegions(ctx context.Context, cred models.Credential) ([]string, error) {
	cfg, err := p.load(ctx, cred, HomeRegion)
	if err != nil {
		return nil, err
	}
	out, err := p.factory(cfg).EC2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		switch aws.ToString(r.OptInStatus) {
		case "opt-in-not-required", "opted-in":
			if name := aws.ToString(r.RegionName); name != "" {
				regions = append(regions, name)
			}
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// ---------------------------------------------------------------------------
// Package-private helpers
// ---------------------------------------------------------------------------

// resolveIdentity calls STS GetCallerIdentity and returns the identity as a
// flat map.
func resolveIdentity(ctx context.Context, stsClient STSClient) (map[string]string, error) {
	out, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return nil, fmt.Errorf("STS GetCallerIdentity returned nil account")
	}
	return map[string]string{
		"Account": aws.ToString(out.Account),
		"Arn":     aws.ToString(out.Arn),
		"UserId":  aws.ToString(out.UserId),
	}, nil
}

// probePermissions issues one cheap read call per probed permission.
func probePermissions(ctx context.Context, c *ClientSet) map[string]bool {
	perms := map[string]bool{PermGetCallerIdentity: true}

	_, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{MaxResults: aws.Int32(5)})
	perms[PermDescribeSecurityGroups] = err == nil

	_, err = c.EKS.ListClusters(ctx, &eks.ListClustersInput{MaxResults: aws.Int32(1)})
	perms[PermListClusters] = err == nil

	_, err = c.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	perms[PermListAllMyBuckets] = err == nil

	return perms
}
