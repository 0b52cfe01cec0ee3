package subsidy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
)

// Client talks to the subsidy ledger service.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an API client configured for the ledger.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func subsidyPath(subsidyUUID uuid.UUID, suffix string) string {
	return "/api/v2/subsidies/" + subsidyUUID.String() + "/" + suffix
}

// TransactionURL is the ledger's public URL for a transaction.
func (c *Client) TransactionURL(transactionUUID uuid.UUID) string {
	return c.api.BaseURL() + "/api/v1/transactions/" + transactionUUID.String() + "/"
}

// RetrieveSubsidy fetches a subsidy snapshot.
func (c *Client) RetrieveSubsidy(ctx context.Context, subsidyUUID uuid.UUID) (*Subsidy, error) {
	var out Subsidy
	if err := c.api.GetJSON(ctx, subsidyPath(subsidyUUID, ""), nil, &out); err != nil {
		if apiclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSubsidyNotFound, subsidyUUID)
		}
		return nil, wrapError(err)
	}
	return &out, nil
}

// CanRedeem asks the ledger whether the learner may spend on contentKey.
func (c *Client) CanRedeem(ctx context.Context, subsidyUUID uuid.UUID, lmsUserID int64, contentKey string) (*CanRedeemResult, error) {
	query := url.Values{}
	query.Set("lms_user_id", strconv.FormatInt(lmsUserID, 10))
	query.Set("content_key", contentKey)

	var out CanRedeemResult
	if err := c.api.GetJSON(ctx, subsidyPath(subsidyUUID, "can-redeem/"), query, &out); err != nil {
		return nil, wrapError(err)
	}
	if out.ContentKey == "" {
		out.ContentKey = contentKey
	}
	return &out, nil
}

// ListTransactions returns every transaction matching the filter, following pagination.
func (c *Client) ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionList, error) {
	query := url.Values{}
	query.Set("include_aggregates", "true")
	if filter.LmsUserID != 0 {
		query.Set("lms_user_id", strconv.FormatInt(filter.LmsUserID, 10))
	}
	if filter.SubsidyAccessPolicyUUID != uuid.Nil {
		query.Set("subsidy_access_policy_uuid", filter.SubsidyAccessPolicyUUID.String())
	}
	if filter.ContentKey != "" {
		query.Set("content_key", filter.ContentKey)
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		query.Set("state", strings.Join(states, ","))
	}

	list := &TransactionList{Results: []Transaction{}}
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))

		var out TransactionList
		if err := c.api.GetJSON(ctx, subsidyPath(filter.SubsidyUUID, "admin/transactions/"), query, &out); err != nil {
			return nil, wrapError(err)
		}
		list.Results = append(list.Results, out.Results...)
		if page == 1 {
			list.Aggregates = out.Aggregates
		}
		if out.Next == nil || *out.Next == "" {
			break
		}
	}
	return list, nil
}

// CreateTransaction asks the ledger to redeem. The ledger deduplicates on IdempotencyKey.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	var out Transaction
	if err := c.api.PostJSON(ctx, subsidyPath(req.SubsidyUUID, "admin/transactions/"), req, &out); err != nil {
		return nil, wrapError(err)
	}
	return &out, nil
}
