package policy

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the closed set of policy variants.
type Type string

const (
	TypeCappedEnrollment        Type = "CappedEnrollmentLearnerCreditAccessPolicy"
	TypePerLearnerEnrollmentCap Type = "PerLearnerEnrollmentCapLearnerCreditAccessPolicy"
	TypePerLearnerSpendCap      Type = "PerLearnerSpendCapLearnerCreditAccessPolicy"
	TypeAssignedLearnerCredit   Type = "AssignedLearnerCreditAccessPolicy"
)

// Valid reports whether t is a known policy type.
func (t Type) Valid() bool {
	switch t {
	case TypeCappedEnrollment, TypePerLearnerEnrollmentCap, TypePerLearnerSpendCap, TypeAssignedLearnerCredit:
		return true
	}
	return false
}

// AccessMethod says how learners reach the credit.
type AccessMethod string

const (
	AccessMethodDirect   AccessMethod = "direct"
	AccessMethodAssigned AccessMethod = "assigned"
)

// Policy controls which learners and content may draw against a subsidy.
// Amounts are in USD cents.
type Policy struct {
	UUID                        uuid.UUID    `db:"uuid" json:"uuid"`
	PolicyType                  Type         `db:"policy_type" json:"policy_type"`
	EnterpriseCustomerUUID      uuid.UUID    `db:"enterprise_customer_uuid" json:"enterprise_customer_uuid"`
	CatalogUUID                 uuid.UUID    `db:"catalog_uuid" json:"catalog_uuid"`
	SubsidyUUID                 uuid.UUID    `db:"subsidy_uuid" json:"subsidy_uuid"`
	AccessMethod                AccessMethod `db:"access_method" json:"access_method"`
	DisplayName                 string       `db:"display_name" json:"display_name"`
	Description                 string       `db:"description" json:"description"`
	Active                      bool         `db:"active" json:"active"`
	Retired                     bool         `db:"retired" json:"retired"`
	RetiredAt                   *time.Time   `db:"retired_at" json:"retired_at"`
	SpendLimit                  *int64       `db:"spend_limit" json:"spend_limit"`
	PerLearnerEnrollmentLimit   *int         `db:"per_learner_enrollment_limit" json:"per_learner_enrollment_limit"`
	PerLearnerSpendLimit        *int64       `db:"per_learner_spend_limit" json:"per_learner_spend_limit"`
	AssignmentConfigurationUUID *uuid.UUID   `db:"assignment_configuration_uuid" json:"assignment_configuration"`
	LateRedemptionAllowedUntil  *time.Time   `db:"late_redemption_allowed_until" json:"late_redemption_allowed_until"`
	GroupUUIDs                  []uuid.UUID  `db:"-" json:"group_associations"`
	Created                     time.Time    `db:"created" json:"created"`
	Modified                    time.Time    `db:"modified" json:"modified"`
}

// IsRedeemable reports whether the policy may be spent against at all.
func (p *Policy) IsRedeemable() bool {
	return p.Active && !p.Retired
}

// IsLateRedemptionAllowed reports whether enrollment deadlines are waived at now.
func (p *Policy) IsLateRedemptionAllowed(now time.Time) bool {
	return p.LateRedemptionAllowedUntil != nil && now.Before(*p.LateRedemptionAllowedUntil)
}

// IsAssignable reports whether redemption is gated by learner assignments.
func (p *Policy) IsAssignable() bool {
	return p.PolicyType == TypeAssignedLearnerCredit
}

// HasGroupRestriction reports whether only members of GroupUUIDs may redeem.
func (p *Policy) HasGroupRestriction() bool {
	return len(p.GroupUUIDs) > 0
}

// SpendLimitOrZero returns the spend limit, treating nil as zero.
func (p *Policy) SpendLimitOrZero() int64 {
	if p.SpendLimit == nil {
		return 0
	}
	return *p.SpendLimit
}

// SortStable orders policies by creation time, then UUID.
func SortStable(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		a, b := policies[i], policies[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.UUID.String() < b.UUID.String()
	})
}
