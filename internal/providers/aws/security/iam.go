package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// IAMUserCollector returns every IAM user with whether MFA is enabled and
// whether the user has a console login profile. The ListUsers paginator
// handles accounts with many users.
type IAMUserCollector struct {
	client IAMAPI
}

func NewIAMUserCollector(client IAMAPI) *IAMUserCollector {
	return &IAMUserCollector{client: client}
}

func (c *IAMUserCollector) Service() string      { return common.ServiceIAM }
func (c *IAMUserCollector) ResourceType() string { return TypeIAMUser }

func (c *IAMUserCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	paginator := iamsvc.NewListUsersPaginator(c.client, &iamsvc.ListUsersInput{})
	var records []models.ResourceRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM users: %w", err)
		}
		for _, u := range page.Users {
			name := aws.ToString(u.UserName)
			rec := newRecord(name, TypeIAMUser, models.GlobalRegion)
			rec["arn"] = aws.ToString(u.Arn)
			rec["created"] = timestamp(u.CreateDate)
			rec["has_mfa"] = c.hasMFA(ctx, name)
			rec["console_access"] = c.hasLoginProfile(ctx, name)
			records = append(records, rec)
		}
	}
	return records, nil
}

// hasMFA returns true when the user has at least one MFA device. Errors
// are treated as no MFA.
func (c *IAMUserCollector) hasMFA(ctx context.Context, userName string) bool {
	out, err := c.client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		return false
	}
	return len(out.MFADevices) > 0
}

// hasLoginProfile returns true when the user has a console password.
// GetLoginProfile fails with NoSuchEntity for API-only users.
func (c *IAMUserCollector) hasLoginProfile(ctx context.Context, userName string) bool {
	_, err := c.client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{
		UserName: aws.String(userName),
	})
	return err == nil
}
