package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// BucketCollector lists every S3 bucket in the account. Buckets are global,
// so the collector runs once per scan against the home region. Each bucket's
// own region is resolved first and the encryption lookup is sent there.
type BucketCollector struct {
	client S3API
}

func NewBucketCollector(client S3API) *BucketCollector {
	return &BucketCollector{client: client}
}

func (c *BucketCollector) Service() string      { return common.ServiceCommon }
func (c *BucketCollector) ResourceType() string { return TypeBucket }

func (c *BucketCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	out, err := c.client.ListBuckets(ctx, &s3svc.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list S3 buckets: %w", err)
	}

	records := make([]models.ResourceRecord, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		region := c.bucketRegion(ctx, name)
		rec := newRecord(name, TypeBucket, region)
		rec["created"] = timestamp(b.CreationDate)
		rec["encryption_enabled"] = c.encryptionEnabled(ctx, name, region)
		records = append(records, rec)
	}
	return records, nil
}

// bucketRegion maps GetBucketLocation's legacy answers: an empty constraint
// means us-east-1 and "EU" means eu-west-1. Errors fall back to the home
// region.
func (c *BucketCollector) bucketRegion(ctx context.Context, name string) string {
	out, err := c.client.GetBucketLocation(ctx, &s3svc.GetBucketLocationInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return common.HomeRegion
	}
	switch loc := string(out.LocationConstraint); loc {
	case "":
		return "us-east-1"
	case "EU":
		return "eu-west-1"
	default:
		return loc
	}
}

// encryptionEnabled returns true when GetBucketEncryption returns a
// configuration. A missing configuration
// (ServerSideEncryptionConfigurationNotFoundError) or any other error is
// treated as not encrypted.
func (c *BucketCollector) encryptionEnabled(ctx context.Context, name, region string) bool {
	_, err := c.client.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{
		Bucket: aws.String(name),
	}, func(o *s3svc.Options) {
		o.Region = region
	})
	return err == nil
}
