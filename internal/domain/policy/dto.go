package policy

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest holds the fields of a new policy.
type CreateRequest struct {
	PolicyType                  string      `json:"policy_type" validate:"required,policy_type"`
	EnterpriseCustomerUUID      uuid.UUID   `json:"enterprise_customer_uuid" validate:"required"`
	CatalogUUID                 uuid.UUID   `json:"catalog_uuid" validate:"required"`
	SubsidyUUID                 uuid.UUID   `json:"subsidy_uuid" validate:"required"`
	AccessMethod                string      `json:"access_method" validate:"omitempty,access_method"`
	DisplayName                 string      `json:"display_name" validate:"max=255"`
	Description                 string      `json:"description"`
	Active                      bool        `json:"active"`
	Retired                     bool        `json:"retired"`
	SpendLimit                  *int64      `json:"spend_limit" validate:"omitempty,gte=0"`
	PerLearnerEnrollmentLimit   *int        `json:"per_learner_enrollment_limit" validate:"omitempty,gte=0"`
	PerLearnerSpendLimit        *int64      `json:"per_learner_spend_limit" validate:"omitempty,gte=0"`
	AssignmentConfigurationUUID *uuid.UUID  `json:"assignment_configuration"`
	LateRedemptionAllowedUntil  *time.Time  `json:"late_redemption_allowed_until"`
	GroupUUIDs                  []uuid.UUID `json:"group_associations"`
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	CatalogUUID                *uuid.UUID   `json:"catalog_uuid"`
	SubsidyUUID                *uuid.UUID   `json:"subsidy_uuid"`
	AccessMethod               *string      `json:"access_method" validate:"omitempty,access_method"`
	DisplayName                *string      `json:"display_name" validate:"omitempty,max=255"`
	Description                *string      `json:"description"`
	Active                     *bool        `json:"active"`
	Retired                    *bool        `json:"retired"`
	SpendLimit                 *int64       `json:"spend_limit" validate:"omitempty,gte=0"`
	PerLearnerEnrollmentLimit  *int         `json:"per_learner_enrollment_limit" validate:"omitempty,gte=0"`
	PerLearnerSpendLimit       *int64       `json:"per_learner_spend_limit" validate:"omitempty,gte=0"`
	LateRedemptionAllowedUntil *time.Time   `json:"late_redemption_allowed_until"`
	GroupUUIDs                 *[]uuid.UUID `json:"group_associations"`
}
