package awssecurity

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	guardduty "github.com/aws/aws-sdk-go-v2/service/guardduty"
	guarddutytypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var errDenied = errors.New("AccessDenied")

// fakeEC2 returns canned pages. sgPages are served in order and the
// NextToken links them so the SDK paginator walks every page.
type fakeEC2 struct {
	sgPages    []*ec2svc.DescribeSecurityGroupsOutput
	sgErr      error
	instances  *ec2svc.DescribeInstancesOutput
	protected  map[string]bool
	attrErr    error
	volumes    *ec2svc.DescribeVolumesOutput
	snapshots  *ec2svc.DescribeSnapshotsOutput
	snapOwners []string
	snapShares map[string]*ec2svc.DescribeSnapshotAttributeOutput
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2svc.DescribeSecurityGroupsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error) {
	if f.sgErr != nil {
		return nil, f.sgErr
	}
	idx := 0
	if in.NextToken != nil {
		idx = int(aws.ToString(in.NextToken)[0] - '0')
	}
	page := *f.sgPages[idx]
	if idx+1 < len(f.sgPages) {
		page.NextToken = aws.String(string(rune('0' + idx + 1)))
	}
	return &page, nil
}

func (f *fakeEC2) DescribeInstances(context.Context, *ec2svc.DescribeInstancesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeInstancesOutput, error) {
	if f.instances == nil {
		return &ec2svc.DescribeInstancesOutput{}, nil
	}
	return f.instances, nil
}

func (f *fakeEC2) DescribeInstanceAttribute(_ context.Context, in *ec2svc.DescribeInstanceAttributeInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeInstanceAttributeOutput, error) {
	if f.attrErr != nil {
		return nil, f.attrErr
	}
	return &ec2svc.DescribeInstanceAttributeOutput{
		DisableApiTermination: &ec2types.AttributeBooleanValue{Value: aws.Bool(f.protected[aws.ToString(in.InstanceId)])},
	}, nil
}

func (f *fakeEC2) DescribeVolumes(context.Context, *ec2svc.DescribeVolumesInput, ...func(*ec2svc.Options)) (*ec2svc.DescribeVolumesOutput, error) {
	if f.volumes == nil {
		return &ec2svc.DescribeVolumesOutput{}, nil
	}
	return f.volumes, nil
}

func (f *fakeEC2) DescribeSnapshots(_ context.Context, in *ec2svc.DescribeSnapshotsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotsOutput, error) {
	f.snapOwners = in.OwnerIds
	if f.snapshots == nil {
		return &ec2svc.DescribeSnapshotsOutput{}, nil
	}
	return f.snapshots, nil
}

func (f *fakeEC2) DescribeSnapshotAttribute(_ context.Context, in *ec2svc.DescribeSnapshotAttributeInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSnapshotAttributeOutput, error) {
	out, ok := f.snapShares[aws.ToString(in.SnapshotId)]
	if !ok {
		return nil, errDenied
	}
	return out, nil
}

type fakeS3 struct {
	buckets   []string
	locations map[string]string
	encrypted map[string]bool
	// encRegion records the region override sent with each encryption call.
	encRegion map[string]string
}

func (f *fakeS3) ListBuckets(context.Context, *s3svc.ListBucketsInput, ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error) {
	out := &s3svc.ListBucketsOutput{}
	for _, b := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(b)})
	}
	return out, nil
}

func (f *fakeS3) GetBucketLocation(_ context.Context, in *s3svc.GetBucketLocationInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketLocationOutput, error) {
	loc, ok := f.locations[aws.ToString(in.Bucket)]
	if !ok {
		return nil, errDenied
	}
	return &s3svc.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraint(loc)}, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, in *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error) {
	var o s3svc.Options
	for _, fn := range optFns {
		fn(&o)
	}
	if f.encRegion == nil {
		f.encRegion = map[string]string{}
	}
	name := aws.ToString(in.Bucket)
	f.encRegion[name] = o.Region
	if !f.encrypted[name] {
		return nil, errors.New("ServerSideEncryptionConfigurationNotFoundError")
	}
	return &s3svc.GetBucketEncryptionOutput{}, nil
}

type fakeIAM struct {
	users      []string
	mfa        map[string]bool
	login      map[string]bool
	summary    map[string]int32
	summaryErr error
}

func (f *fakeIAM) ListUsers(context.Context, *iamsvc.ListUsersInput, ...func(*iamsvc.Options)) (*iamsvc.ListUsersOutput, error) {
	out := &iamsvc.ListUsersOutput{}
	for _, u := range f.users {
		out.Users = append(out.Users, iamtypes.User{UserName: aws.String(u), Arn: aws.String("arn:aws:iam::123456789012:user/" + u)})
	}
	return out, nil
}

func (f *fakeIAM) ListMFADevices(_ context.Context, in *iamsvc.ListMFADevicesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error) {
	out := &iamsvc.ListMFADevicesOutput{}
	if f.mfa[aws.ToString(in.UserName)] {
		out.MFADevices = []iamtypes.MFADevice{{SerialNumber: aws.String("arn:mfa")}}
	}
	return out, nil
}

func (f *fakeIAM) GetLoginProfile(_ context.Context, in *iamsvc.GetLoginProfileInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error) {
	if !f.login[aws.ToString(in.UserName)] {
		return nil, errors.New("NoSuchEntity")
	}
	return &iamsvc.GetLoginProfileOutput{}, nil
}

func (f *fakeIAM) GetAccountSummary(context.Context, *iamsvc.GetAccountSummaryInput, ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &iamsvc.GetAccountSummaryOutput{SummaryMap: f.summary}, nil
}

type fakeRDS struct {
	out *rdssvc.DescribeDBInstancesOutput
	err error
}

func (f *fakeRDS) DescribeDBInstances(context.Context, *rdssvc.DescribeDBInstancesInput, ...func(*rdssvc.Options)) (*rdssvc.DescribeDBInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeCloudTrail struct {
	out *cloudtrailsvc.DescribeTrailsOutput
	err error
}

func (f *fakeCloudTrail) DescribeTrails(context.Context, *cloudtrailsvc.DescribeTrailsInput, ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error) {
	return f.out, f.err
}

type fakeGuardDuty struct {
	detectors []string
	status    guarddutytypes.DetectorStatus
	listErr   error
}

func (f *fakeGuardDuty) ListDetectors(context.Context, *guardduty.ListDetectorsInput, ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &guardduty.ListDetectorsOutput{DetectorIds: f.detectors}, nil
}

func (f *fakeGuardDuty) GetDetector(context.Context, *guardduty.GetDetectorInput, ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error) {
	return &guardduty.GetDetectorOutput{Status: f.status}, nil
}

type fakeConfig struct {
	out *configsvc.DescribeConfigurationRecorderStatusOutput
	err error
}

func (f *fakeConfig) DescribeConfigurationRecorderStatus(context.Context, *configsvc.DescribeConfigurationRecorderStatusInput, ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error) {
	return f.out, f.err
}
