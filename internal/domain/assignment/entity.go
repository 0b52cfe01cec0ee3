package assignment

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a learner content assignment.
type State string

const (
	StateAllocated State = "allocated"
	StateAccepted  State = "accepted"
	StateCancelled State = "cancelled"
	StateErrored   State = "errored"
	StateExpired   State = "expired"
)

// Assignment earmarks credit for one learner and one content key.
// ContentQuantity is negative, like ledger spends.
type Assignment struct {
	UUID                        uuid.UUID  `db:"uuid" json:"uuid"`
	AssignmentConfigurationUUID uuid.UUID  `db:"assignment_configuration_uuid" json:"assignment_configuration"`
	ContentKey                  string     `db:"content_key" json:"content_key"`
	ParentContentKey            *string    `db:"parent_content_key" json:"parent_content_key"`
	LmsUserID                   *int64     `db:"lms_user_id" json:"lms_user_id"`
	LearnerEmail                string     `db:"learner_email" json:"learner_email"`
	State                       State      `db:"state" json:"state"`
	ContentQuantity             int64      `db:"content_quantity" json:"content_quantity"`
	TransactionUUID             *uuid.UUID `db:"transaction_uuid" json:"transaction_uuid"`
	Created                     time.Time  `db:"created" json:"created"`
	Modified                    time.Time  `db:"modified" json:"modified"`
}

// IsAllocated reports whether the assignment still earmarks redeemable credit.
func (a *Assignment) IsAllocated() bool {
	return a.State == StateAllocated
}

// MatchesContent reports whether key is the assigned content or its parent.
func (a *Assignment) MatchesContent(key string) bool {
	if a.ContentKey == key {
		return true
	}
	return a.ParentContentKey != nil && *a.ParentContentKey == key
}
