package awssecurity

import (
	"context"

	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
)

// RootAccountCollector emits a single record describing the root user,
// read from the IAM account summary.
//
// AccountAccessKeysPresent is the number of root access keys.
// AccountMFAEnabled is 1 when virtual or hardware MFA is enabled on root.
// data_available is false when the summary could not be read so rules can
// tell "collection failed" from "actually not enabled".
type RootAccountCollector struct {
	client IAMAPI
}

func NewRootAccountCollector(client IAMAPI) *RootAccountCollector {
	return &RootAccountCollector{client: client}
}

func (c *RootAccountCollector) Service() string      { return common.ServiceIAM }
func (c *RootAccountCollector) ResourceType() string { return TypeRootAccount }

func (c *RootAccountCollector) Collect(ctx context.Context) ([]models.ResourceRecord, error) {
	rec := newRecord("root", TypeRootAccount, models.GlobalRegion)
	out, err := c.client.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	if err != nil {
		rec["data_available"] = false
		return []models.ResourceRecord{rec}, nil
	}
	rec["data_available"] = true
	rec["access_keys_present"] = out.SummaryMap["AccountAccessKeysPresent"] > 0
	rec["mfa_enabled"] = out.SummaryMap["AccountMFAEnabled"] > 0
	return []models.ResourceRecord{rec}, nil
}
