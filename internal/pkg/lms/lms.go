package lms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
)

var ErrEnterpriseNotFound = errors.New("enterprise customer not found")

// EnterpriseUser is a learner's membership in one enterprise customer.
type EnterpriseUser struct {
	LmsUserID              int64
	Email                  string
	EnterpriseCustomerUUID uuid.UUID
	GroupUUIDs             []uuid.UUID
	Active                 bool
}

// InAnyGroup reports whether the user belongs to at least one of groups.
func (u *EnterpriseUser) InAnyGroup(groups []uuid.UUID) bool {
	for _, g := range groups {
		for _, m := range u.GroupUUIDs {
			if g == m {
				return true
			}
		}
	}
	return false
}

// AdminUser is an enterprise administrator contact.
type AdminUser struct {
	Email     string `json:"email"`
	LmsUserID *int64 `json:"lms_user_id"`
}

// EnterpriseCustomer holds the contact data used in learner-facing messages.
type EnterpriseCustomer struct {
	UUID         uuid.UUID   `json:"uuid"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"`
	ContactEmail string      `json:"contact_email"`
	AdminUsers   []AdminUser `json:"admin_users"`
}

type enterpriseLearnerRecord struct {
	Active bool `json:"active"`
	User   struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	EnterpriseCustomer struct {
		UUID uuid.UUID `json:"uuid"`
	} `json:"enterprise_customer"`
	EnterpriseGroup []uuid.UUID `json:"enterprise_group"`
}

// Client talks to the LMS enterprise API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an API client configured for the LMS.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// GetEnterpriseUser returns nil, nil when the learner is not linked to the enterprise.
func (c *Client) GetEnterpriseUser(ctx context.Context, enterpriseUUID uuid.UUID, lmsUserID int64) (*EnterpriseUser, error) {
	query := url.Values{}
	query.Set("enterprise_customer_uuid", enterpriseUUID.String())
	query.Set("user_ids", strconv.FormatInt(lmsUserID, 10))

	var out struct {
		Results []enterpriseLearnerRecord `json:"results"`
	}
	if err := c.api.GetJSON(ctx, "/enterprise/api/v1/enterprise-learner/", query, &out); err != nil {
		if apiclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lms enterprise learner: %w", err)
	}

	for _, rec := range out.Results {
		if rec.User.ID != lmsUserID || rec.EnterpriseCustomer.UUID != enterpriseUUID {
			continue
		}
		return &EnterpriseUser{
			LmsUserID:              rec.User.ID,
			Email:                  rec.User.Email,
			EnterpriseCustomerUUID: rec.EnterpriseCustomer.UUID,
			GroupUUIDs:             rec.EnterpriseGroup,
			Active:                 rec.Active,
		}, nil
	}
	return nil, nil
}

// GetEnterpriseCustomerData fetches the enterprise's admin contacts.
func (c *Client) GetEnterpriseCustomerData(ctx context.Context, enterpriseUUID uuid.UUID) (*EnterpriseCustomer, error) {
	var out EnterpriseCustomer
	path := "/enterprise/api/v1/enterprise-customer/" + enterpriseUUID.String() + "/"
	if err := c.api.GetJSON(ctx, path, nil, &out); err != nil {
		if apiclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrEnterpriseNotFound, enterpriseUUID)
		}
		return nil, fmt.Errorf("lms enterprise customer: %w", err)
	}
	return &out, nil
}
