// Package inventory resolves which collectors run for a region and ties
// credential validation, region discovery and collection together for one
// AWS account.
package inventory

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/eks"
	awssecurity "github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/security"
)

// EKSClientFactory creates the EKS client for a regional config.
type EKSClientFactory func(cfg aws.Config) eks.EKSAPI

// Registry maps a region to its ordered collector list. All collectors it
// returns share clients built from one authenticated config.
type Registry struct {
	cfg      aws.Config
	security awssecurity.ClientFactory
	eks      EKSClientFactory
}

// NewRegistry returns a registry backed by real SDK clients.
func NewRegistry(cfg aws.Config) *Registry {
	return NewRegistryWithFactories(cfg, awssecurity.NewClients, eks.NewClient)
}

// NewRegistryWithFactories lets tests inject fake clients.
func NewRegistryWithFactories(cfg aws.Config, sec awssecurity.ClientFactory, eksf EKSClientFactory) *Registry {
	return &Registry{cfg: cfg, security: sec, eks: eksf}
}

// CollectorsFor returns the collectors for region in evaluation order:
// security groups, instances, volumes, snapshots, EKS clusters, RDS
// instances, then the GuardDuty and Config posture records.
//
// The GLOBAL pseudo-region (any case) returns the account-wide collectors
// instead, S3 buckets then IAM users followed by the root account and
// CloudTrail, all built against the home region.
func (r *Registry) CollectorsFor(region string) []common.Collector {
	if strings.EqualFold(region, models.GlobalRegion) {
		clients := r.security(common.ConfigForRegion(r.cfg, common.HomeRegion))
		return awssecurity.GlobalCollectors(clients)
	}

	cfg := common.ConfigForRegion(r.cfg, region)
	sec := r.security(cfg)

	collectors := awssecurity.RegionalCollectors(sec, region)
	collectors = append(collectors, eks.NewClusterCollector(r.eks(cfg), region))
	collectors = append(collectors, awssecurity.DataServiceCollectors(sec, region)...)
	collectors = append(collectors, awssecurity.PostureCollectors(sec, region)...)
	return collectors
}

// Provider is the production account provider used by the scan engine.
type Provider struct {
	clients  *common.DefaultAWSClientProvider
	load     common.ConfigLoader
	security awssecurity.ClientFactory
	eks      EKSClientFactory
}

// NewProvider returns a Provider backed by the real AWS SDK.
func NewProvider() *Provider {
	return &Provider{
		clients:  common.NewDefaultAWSClientProvider(),
		load:     common.LoadConfig,
		security: awssecurity.NewClients,
		eks:      eks.NewClient,
	}
}

// NewProviderWithFactories wires every dependency explicitly. Pass fakes in
// tests.
func NewProviderWithFactories(
	cf common.ClientFactory,
	load common.ConfigLoader,
	sec awssecurity.ClientFactory,
	eksf EKSClientFactory,
) *Provider {
	return &Provider{
		clients:  common.NewDefaultAWSClientProviderWithFactory(cf, load),
		load:     load,
		security: sec,
		eks:      eksf,
	}
}

// ValidateCredentials checks cred with STS and probes read permissions.
func (p *Provider) ValidateCredentials(ctx context.Context, cred models.Credential) (*common.Validation, error) {
	return p.clients.ValidateCredentials(ctx, cred)
}

// ActiveRegions lists the regions enabled for the account.
func (p *Provider) ActiveRegions(ctx context.Context, cred models.Credential) ([]string, error) {
	return p.clients.ActiveRegions(ctx, cred)
}

// Collectors builds an authenticated config for region and resolves its
// collectors.
func (p *Provider) Collectors(ctx context.Context, cred models.Credential, region string) ([]common.Collector, error) {
	cfg, err := p.load(ctx, cred, region)
	if err != nil {
		return nil, err
	}
	return NewRegistryWithFactories(cfg, p.security, p.eks).CollectorsFor(region), nil
}
