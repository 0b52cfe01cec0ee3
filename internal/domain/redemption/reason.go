package redemption

import (
	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/lms"
)

// ReasonCode names the business rule that blocked a policy.
type ReasonCode string

const (
	ReasonContentNotInCatalog          ReasonCode = "content_not_in_catalog"
	ReasonSubsidyExpired               ReasonCode = "subsidy_expired"
	ReasonLearnerNotInEnterprise       ReasonCode = "learner_not_in_enterprise"
	ReasonLearnerNotInEnterpriseGroup  ReasonCode = "learner_not_in_enterprise_group"
	ReasonNotEnoughValueInSubsidy      ReasonCode = "not_enough_value_in_subsidy"
	ReasonPolicySpendLimitReached      ReasonCode = "policy_spend_limit_reached"
	ReasonLearnerMaxSpendReached       ReasonCode = "learner_max_spend_reached"
	ReasonLearnerMaxEnrollmentsReached ReasonCode = "learner_max_enrollments_reached"
	ReasonLearnerNotAssignedContent    ReasonCode = "reason_learner_not_assigned_content"
	ReasonLearnerAssignmentCancelled   ReasonCode = "reason_learner_assignment_cancelled"
	ReasonLearnerAssignmentFailed      ReasonCode = "reason_learner_assignment_failed"
	ReasonBeyondEnrollmentDeadline     ReasonCode = "reason_beyond_enrollment_deadline"
)

// Learner facing messages.
const (
	UserMessageOrganizationNoFunds         = "You can't enroll right now because your organization doesn't have enough funds."
	UserMessageOrganizationNoFundsNoAdmins = "You can't enroll right now because your organization doesn't have enough funds. Contact your organization's learning and development team to request more."
	UserMessageOrganizationExpiredFunds    = "You can't enroll right now because your funds expired."
	UserMessageLearnerLimitsReached        = "You can't enroll right now because of limits set by your organization."
	UserMessageContentNotInCatalog         = "You can't enroll right now because this course is no longer available in your organization's catalog."
	UserMessageLearnerNotInEnterprise      = "You can't enroll right now because your account is no longer associated with the organization."
	UserMessageLearnerNotAssignedContent   = "You can't enroll right now because this course is not assigned to you."
	UserMessageLearnerAssignmentCancelled  = "You can't enroll right now because your assignment for this course was canceled by your organization."
	UserMessageBeyondEnrollmentDeadline    = "You can't enroll right now because the enrollment deadline for this course has passed."
)

// Reason explains why content could not be redeemed under some policies.
type Reason struct {
	Code        ReasonCode             `json:"reason"`
	UserMessage string                 `json:"user_message"`
	Metadata    map[string]interface{} `json:"metadata"`
	PolicyUUIDs []uuid.UUID            `json:"policy_uuids"`
}

// AdminContact is an enterprise administrator a learner can ask for help.
type AdminContact struct {
	Email     string `json:"email"`
	LmsUserID *int64 `json:"lms_user_id,omitempty"`
}

// adminContacts prefers the enterprise contact email, then the admin users.
func adminContacts(customer *lms.EnterpriseCustomer) []AdminContact {
	contacts := []AdminContact{}
	if customer == nil {
		return contacts
	}
	if customer.ContactEmail != "" {
		return append(contacts, AdminContact{Email: customer.ContactEmail})
	}
	for _, admin := range customer.AdminUsers {
		contacts = append(contacts, AdminContact{Email: admin.Email, LmsUserID: admin.LmsUserID})
	}
	return contacts
}

func userMessageFor(code ReasonCode, hasAdmins bool) string {
	switch code {
	case ReasonNotEnoughValueInSubsidy, ReasonPolicySpendLimitReached:
		if !hasAdmins {
			return UserMessageOrganizationNoFundsNoAdmins
		}
		return UserMessageOrganizationNoFunds
	case ReasonSubsidyExpired:
		return UserMessageOrganizationExpiredFunds
	case ReasonLearnerMaxSpendReached, ReasonLearnerMaxEnrollmentsReached:
		return UserMessageLearnerLimitsReached
	case ReasonContentNotInCatalog:
		return UserMessageContentNotInCatalog
	case ReasonLearnerNotInEnterprise, ReasonLearnerNotInEnterpriseGroup:
		return UserMessageLearnerNotInEnterprise
	case ReasonLearnerNotAssignedContent, ReasonLearnerAssignmentFailed:
		return UserMessageLearnerNotAssignedContent
	case ReasonLearnerAssignmentCancelled:
		return UserMessageLearnerAssignmentCancelled
	case ReasonBeyondEnrollmentDeadline:
		return UserMessageBeyondEnrollmentDeadline
	}
	return ""
}

// failure is one policy's rejection before reasons are built.
type failure struct {
	code       ReasonCode
	policyUUID uuid.UUID
}

// buildReasons merges failures by code, keeping first-seen order for codes and policies.
func buildReasons(failures []failure, contacts []AdminContact) []Reason {
	reasons := []Reason{}
	index := map[ReasonCode]int{}
	for _, f := range failures {
		i, ok := index[f.code]
		if !ok {
			reasons = append(reasons, Reason{
				Code:        f.code,
				UserMessage: userMessageFor(f.code, len(contacts) > 0),
				Metadata:    map[string]interface{}{"enterprise_administrators": contacts},
				PolicyUUIDs: []uuid.UUID{},
			})
			i = len(reasons) - 1
			index[f.code] = i
		}
		if f.policyUUID == uuid.Nil || containsUUID(reasons[i].PolicyUUIDs, f.policyUUID) {
			continue
		}
		reasons[i].PolicyUUIDs = append(reasons[i].PolicyUUIDs, f.policyUUID)
	}
	return reasons
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
