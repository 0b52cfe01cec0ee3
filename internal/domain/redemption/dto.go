package redemption

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

// MarshalJSON renders usd as a number with two decimals.
func (lp ListPrice) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"usd":%s,"usd_cents":%d}`, lp.USD.StringFixed(2), lp.USDCents)), nil
}

// Links builds the URLs embedded in responses.
type Links struct {
	SubsidyAPIURL string
	LMSURL        string
	ServiceURL    string
}

func (l Links) transactionStatusURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/transactions/%s/", strings.TrimRight(l.SubsidyAPIURL, "/"), id)
}

func (l Links) coursewareURL(contentKey string) string {
	return fmt.Sprintf("%s/courses/%s/courseware/", strings.TrimRight(l.LMSURL, "/"), contentKey)
}

func (l Links) redeemURL(policyUUID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/policy-redemption/%s/redeem/", strings.TrimRight(l.ServiceURL, "/"), policyUUID)
}

type canRedeemQuery struct {
	ContentKeys []string `schema:"content_key" validate:"required,min=1,dive,content_key"`
}

type redeemRequest struct {
	LmsUserID  *int64                 `json:"lms_user_id"`
	ContentKey string                 `json:"content_key" validate:"required,content_key"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type redemptionResponse struct {
	subsidy.Transaction
	PolicyRedemptionStatusURL string `json:"policy_redemption_status_url"`
	CoursewareURL             string `json:"courseware_url"`
}

type policyResponse struct {
	*policy.Policy
	PolicyRedemptionURL     string `json:"policy_redemption_url"`
	IsLateRedemptionAllowed bool   `json:"is_late_redemption_allowed"`
}

type canRedeemResponse struct {
	ContentKey                    string               `json:"content_key"`
	ListPrice                     *ListPrice           `json:"list_price"`
	Redemptions                   []redemptionResponse `json:"redemptions"`
	HasSuccessfulRedemption       bool                 `json:"has_successful_redemption"`
	RedeemableSubsidyAccessPolicy *policyResponse      `json:"redeemable_subsidy_access_policy"`
	CanRedeem                     bool                 `json:"can_redeem"`
	Reasons                       []Reason             `json:"reasons"`
	DisplayReason                 *Reason              `json:"display_reason"`
}

type creditsAvailableResponse struct {
	policyResponse
	RemainingBalancePerUser *int64     `json:"remaining_balance_per_user"`
	RemainingBalance        int64      `json:"remaining_balance"`
	SubsidyExpirationDate   *time.Time `json:"subsidy_expiration_date"`
}

func (l Links) policy(p *policy.Policy, now time.Time) *policyResponse {
	if p == nil {
		return nil
	}
	return &policyResponse{
		Policy:                  p,
		PolicyRedemptionURL:     l.redeemURL(p.UUID),
		IsLateRedemptionAllowed: p.IsLateRedemptionAllowed(now),
	}
}

func (l Links) canRedeem(r Result, now time.Time) canRedeemResponse {
	redemptions := make([]redemptionResponse, len(r.Redemptions))
	for i, tx := range r.Redemptions {
		redemptions[i] = redemptionResponse{
			Transaction:               tx,
			PolicyRedemptionStatusURL: l.transactionStatusURL(tx.UUID),
			CoursewareURL:             l.coursewareURL(tx.ContentKey),
		}
	}
	return canRedeemResponse{
		ContentKey:                    r.ContentKey,
		ListPrice:                     r.ListPrice,
		Redemptions:                   redemptions,
		HasSuccessfulRedemption:       r.HasSuccessfulRedemption,
		RedeemableSubsidyAccessPolicy: l.policy(r.RedeemablePolicy, now),
		CanRedeem:                     r.CanRedeem,
		Reasons:                       r.Reasons,
		DisplayReason:                 r.DisplayReason,
	}
}

func (l Links) credits(c CreditsAvailable, now time.Time) creditsAvailableResponse {
	return creditsAvailableResponse{
		policyResponse:          *l.policy(c.Policy, now),
		RemainingBalancePerUser: c.RemainingBalancePerUser,
		RemainingBalance:        c.RemainingBalance,
		SubsidyExpirationDate:   c.SubsidyExpirationDate,
	}
}
