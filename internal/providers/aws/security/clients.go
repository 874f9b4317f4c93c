package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// EC2API is the narrow EC2 interface used by the security group, instance,
// volume and snapshot collectors. It embeds the SDK paginator interfaces so
// the SDK paginators can be used directly.
type EC2API interface {
	ec2svc.DescribeSecurityGroupsAPIClient
	ec2svc.DescribeInstancesAPIClient
	ec2svc.DescribeVolumesAPIClient
	ec2svc.DescribeSnapshotsAPIClient
	DescribeInstanceAttribute(ctx context.Context, params *ec2svc.DescribeInstanceAttributeInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeInstanceAttributeOutput, error)
	DescribeSnapshotAttribute(ctx context.Context, params *ec2svc.DescribeSnapshotAttributeInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotAttributeOutput, error)
}

// S3API covers bucket listing, location lookup and encryption status.
type S3API interface {
	ListBuckets(ctx context.Context, params *s3svc.ListBucketsInput, optFns ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3svc.GetBucketLocationInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLocationOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
}

// IAMAPI is the narrow IAM interface used for user and root account data.
type IAMAPI interface {
	iamsvc.ListUsersAPIClient
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
}

// RDSAPI is satisfied by the SDK client and by the paginator.
type RDSAPI interface {
	rdssvc.DescribeDBInstancesAPIClient
}

// CloudTrailAPI returns the account's trails.
type CloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrailsvc.DescribeTrailsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error)
}

// GuardDutyAPI lists detectors and reads their status.
type GuardDutyAPI interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guardduty.GetDetectorInput, optFns ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error)
}

// ConfigAPI reads configuration recorder status.
type ConfigAPI interface {
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configsvc.DescribeConfigurationRecorderStatusInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error)
}

// Clients bundles the AWS service clients used by the collectors in this
// package. All fields are interfaces so tests can substitute fakes.
type Clients struct {
	EC2        EC2API
	S3         S3API
	IAM        IAMAPI
	RDS        RDSAPI
	CloudTrail CloudTrailAPI
	GuardDuty  GuardDutyAPI
	Config     ConfigAPI
}

// ClientFactory creates Clients from an AWS config.
// Injection point: tests replace this with a function returning fake clients.
type ClientFactory func(cfg aws.Config) *Clients

// NewClients creates production AWS SDK clients from the given config.
func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		EC2:        ec2svc.NewFromConfig(cfg),
		S3:         s3svc.NewFromConfig(cfg),
		IAM:        iamsvc.NewFromConfig(cfg),
		RDS:        rdssvc.NewFromConfig(cfg),
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		GuardDuty:  guardduty.NewFromConfig(cfg),
		Config:     configsvc.NewFromConfig(cfg),
	}
}
