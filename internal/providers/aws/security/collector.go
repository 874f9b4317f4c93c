package awssecurity

import (
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// RegionalCollectors returns the collectors that run once per audited
// region, in the order their records are evaluated.
func RegionalCollectors(c *Clients, region string) []common.Collector {
	return []common.Collector{
		NewSecurityGroupCollector(c.EC2, region),
		NewInstanceCollector(c.EC2, region),
		NewVolumeCollector(c.EC2, region),
		NewSnapshotCollector(c.EC2, region),
	}
}

// DataServiceCollectors returns regional collectors for managed data stores.
func DataServiceCollectors(c *Clients, region string) []common.Collector {
	return []common.Collector{
		NewRDSInstanceCollector(c.RDS, region),
	}
}

// PostureCollectors returns the per-region detective control collectors.
func PostureCollectors(c *Clients, region string) []common.Collector {
	return []common.Collector{
		NewGuardDutyCollector(c.GuardDuty, region),
		NewConfigRecorderCollector(c.Config, region),
	}
}

// GlobalCollectors returns the collectors for account-wide services. c must
// be built against the home region.
func GlobalCollectors(c *Clients) []common.Collector {
	return []common.Collector{
		NewBucketCollector(c.S3),
		NewIAMUserCollector(c.IAM),
		NewRootAccountCollector(c.IAM),
		NewCloudTrailCollector(c.CloudTrail),
	}
}
