package subsidy

import (
	"time"

	"github.com/google/uuid"
)

// TransactionState is the ledger lifecycle state of a transaction.
type TransactionState string

const (
	StateCreated   TransactionState = "created"
	StatePending   TransactionState = "pending"
	StateCommitted TransactionState = "committed"
	StateFailed    TransactionState = "failed"
)

// Reversal voids a committed transaction once it is itself committed.
type Reversal struct {
	UUID           uuid.UUID        `json:"uuid"`
	State          TransactionState `json:"state"`
	IdempotencyKey string           `json:"idempotency_key"`
	Quantity       int64            `json:"quantity"`
}

// Transaction is a ledger spend record. Quantity is negative for spends.
type Transaction struct {
	UUID                    uuid.UUID              `json:"uuid"`
	State                   TransactionState       `json:"state"`
	IdempotencyKey          string                 `json:"idempotency_key"`
	LmsUserID               int64                  `json:"lms_user_id"`
	ContentKey              string                 `json:"content_key"`
	Quantity                int64                  `json:"quantity"`
	Unit                    string                 `json:"unit,omitempty"`
	FulfillmentIdentifier   string                 `json:"fulfillment_identifier,omitempty"`
	SubsidyAccessPolicyUUID uuid.UUID              `json:"subsidy_access_policy_uuid"`
	Metadata                map[string]interface{} `json:"metadata,omitempty"`
	Reversal                *Reversal              `json:"reversal"`
	Created                 time.Time              `json:"created"`
	Modified                time.Time              `json:"modified"`
}

// IsReversed reports whether a committed reversal voids the transaction.
func (t Transaction) IsReversed() bool {
	return t.Reversal != nil && t.Reversal.State == StateCommitted
}

// IsSuccessfulRedemption reports a committed transaction that has not been reversed.
func (t Transaction) IsSuccessfulRedemption() bool {
	return t.State == StateCommitted && !t.IsReversed()
}

// CountsTowardSpend reports whether the quantity belongs in usage aggregates.
func (t Transaction) CountsTowardSpend() bool {
	return t.State != StateFailed && !t.IsReversed()
}

// Subsidy is a snapshot of a ledger subsidy.
type Subsidy struct {
	UUID               uuid.UUID  `json:"uuid"`
	Title              string     `json:"title,omitempty"`
	CurrentBalance     int64      `json:"current_balance"`
	StartingBalance    int64      `json:"starting_balance"`
	TotalDeposits      int64      `json:"total_deposits"`
	IsActive           bool       `json:"is_active"`
	ActiveDatetime     *time.Time `json:"active_datetime"`
	ExpirationDatetime *time.Time `json:"expiration_datetime"`
	RetiredAt          *time.Time `json:"retired_at"`
}

// IsCurrentlyActive checks the active window and retirement at now.
func (s Subsidy) IsCurrentlyActive(now time.Time) bool {
	if s.RetiredAt != nil && !s.RetiredAt.After(now) {
		return false
	}
	if s.ActiveDatetime != nil && now.Before(*s.ActiveDatetime) {
		return false
	}
	if s.ExpirationDatetime != nil && now.After(*s.ExpirationDatetime) {
		return false
	}
	return true
}

// CanRedeemResult is the ledger's verdict for one learner and content key.
type CanRedeemResult struct {
	ContentKey      string        `json:"content_key"`
	CanRedeem       bool          `json:"can_redeem"`
	Active          bool          `json:"active"`
	ContentPrice    *int64        `json:"content_price"`
	Unit            string        `json:"unit,omitempty"`
	AllTransactions []Transaction `json:"all_transactions"`
}

// TransactionFilter narrows ListTransactions. Zero values are not sent.
type TransactionFilter struct {
	SubsidyUUID             uuid.UUID
	LmsUserID               int64
	SubsidyAccessPolicyUUID uuid.UUID
	ContentKey              string
	States                  []TransactionState
}

// TransactionAggregates summarises a transaction list.
type TransactionAggregates struct {
	TotalQuantity int64 `json:"total_quantity"`
}

// TransactionList is one page of transactions plus aggregates.
type TransactionList struct {
	Results    []Transaction         `json:"results"`
	Aggregates TransactionAggregates `json:"aggregates"`
	Next       *string               `json:"next,omitempty"`
}

// CreateTransactionRequest asks the ledger to spend against a subsidy.
type CreateTransactionRequest struct {
	SubsidyUUID             uuid.UUID              `json:"-"`
	LmsUserID               int64                  `json:"lms_user_id"`
	ContentKey              string                 `json:"content_key"`
	SubsidyAccessPolicyUUID uuid.UUID              `json:"subsidy_access_policy_uuid"`
	IdempotencyKey          string                 `json:"idempotency_key"`
	Metadata                map[string]interface{} `json:"metadata,omitempty"`
	RequestedPrice          *int64                 `json:"requested_price_cents,omitempty"`
}
