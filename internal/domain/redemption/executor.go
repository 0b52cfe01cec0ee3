package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

// RedeemRequest asks to spend a policy's credit on one content key.
type RedeemRequest struct {
	PolicyUUID uuid.UUID
	LmsUserID  int64
	ContentKey string
	Metadata   map[string]interface{}
}

// Redeem re-checks the policy and records a ledger transaction for it.
// Repeating a request yields the same idempotency key. A failed or reversed
// redemption moves later attempts onto a new versioned key.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*subsidy.Transaction, error) {
	p, err := s.policies.GetByUUID(ctx, req.PolicyUUID)
	if err != nil {
		return nil, err
	}
	if !p.IsRedeemable() {
		return nil, ErrPolicyNotRedeemable
	}
	ctx = logger.WithLearner(ctx, p.EnterpriseCustomerUUID.String(), req.LmsUserID)
	usage := s.newUsageCache()

	refuse := func(code ReasonCode) error {
		contacts := usage.adminContacts(ctx, p.EnterpriseCustomerUUID)
		return &NotRedeemableError{
			ContentKey: req.ContentKey,
			Reasons:    buildReasons([]failure{{code: code, policyUUID: p.UUID}}, contacts),
		}
	}

	metadata, err := s.catalog.GetContentMetadata(ctx, req.ContentKey)
	if errors.Is(err, catalog.ErrContentNotFound) {
		return nil, refuse(ReasonContentNotInCatalog)
	}
	if err != nil {
		return nil, fmt.Errorf("content metadata %s: %w", req.ContentKey, err)
	}
	if metadata.ContentPrice == nil {
		return nil, &PriceError{ContentKey: req.ContentKey}
	}
	inCatalog, err := s.catalog.ContainsContentKey(ctx, p.CatalogUUID, req.ContentKey)
	if err != nil {
		return nil, fmt.Errorf("catalog contains %s: %w", req.ContentKey, err)
	}
	if !inCatalog {
		return nil, refuse(ReasonContentNotInCatalog)
	}

	code, err := checkPolicy(ctx, usage, p, req.LmsUserID, metadata, s.now())
	if err != nil {
		return nil, err
	}
	if code != "" {
		return nil, refuse(code)
	}

	verdict, err := usage.ledgerCanRedeem(ctx, p.SubsidyUUID, req.LmsUserID, req.ContentKey)
	if err != nil {
		return nil, err
	}
	var previous []subsidy.Transaction
	for _, tx := range verdict.AllTransactions {
		if tx.LmsUserID == req.LmsUserID && tx.ContentKey == req.ContentKey && tx.SubsidyAccessPolicyUUID == p.UUID {
			previous = append(previous, tx)
		}
	}
	historical := HistoricalRedemptionUUIDs(previous)
	key := BuildIdempotencyKey(p.SubsidyUUID, req.LmsUserID, req.ContentKey, p.UUID, historical)

	tx, err := s.ledger.CreateTransaction(ctx, subsidy.CreateTransactionRequest{
		SubsidyUUID:             p.SubsidyUUID,
		LmsUserID:               req.LmsUserID,
		ContentKey:              req.ContentKey,
		SubsidyAccessPolicyUUID: p.UUID,
		IdempotencyKey:          key,
		Metadata:                req.Metadata,
		RequestedPrice:          metadata.ContentPrice,
	})
	if err != nil {
		s.metrics.ObserveRedemption("error", keyKind(historical))
		return nil, err
	}

	s.metrics.ObserveRedemption(string(tx.State), keyKind(historical))
	logger.FromContext(ctx).Info().
		Str("policy_uuid", p.UUID.String()).
		Str("content_key", req.ContentKey).
		Str("transaction_uuid", tx.UUID.String()).
		Str("idempotency_key", key).
		Msg("redemption recorded")
	return tx, nil
}
