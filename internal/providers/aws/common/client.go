package common

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// HomeRegion is where global calls (STS, region discovery, S3 listing, IAM)
// are issued.
const HomeRegion = "us-east-1"

const roleSessionName = "securescope-scan"

// ConfigLoader builds an aws.Config for a caller-supplied credential.
// Tests replace it to avoid touching the environment.
type ConfigLoader func(ctx context.Context, cred models.Credential, region string) (aws.Config, error)

// LoadConfig is the production ConfigLoader. The static credential always
// wins over anything found in the environment or shared config files. When
// the credential names a role, every client built from the returned config
// assumes that role first.
func LoadConfig(ctx context.Context, cred models.Credential, region string) (aws.Config, error) {
	if region == "" || region == models.GlobalRegion {
		region = HomeRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cred.AccessKeyID,
			cred.SecretAccessKey,
			cred.SessionToken,
		)),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config for %s: %w", region, err)
	}

	if cred.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), cred.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
			if cred.ExternalID != "" {
				o.ExternalID = aws.String(cred.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return cfg, nil
}

// ConfigForRegion returns a copy of cfg scoped to region. The GLOBAL
// pseudo-region maps to HomeRegion.
func ConfigForRegion(cfg aws.Config, region string) aws.Config {
	regional := cfg
	if region == "" || region == models.GlobalRegion {
		region = HomeRegion
	}
	regional.Region = region
	return regional
}
