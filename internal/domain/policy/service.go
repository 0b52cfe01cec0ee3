package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
	"github.com/enterprise-access/access-api/internal/pkg/validator"
)

// SubsidyReader fetches the subsidy a policy draws against.
type SubsidyReader interface {
	RetrieveSubsidy(ctx context.Context, subsidyUUID uuid.UUID) (*subsidy.Subsidy, error)
}

// Service is the policy mutation boundary; every write is validated here.
type Service struct {
	repo      Repository
	subsidies SubsidyReader
	now       func() time.Time
}

// NewService creates policy service
func NewService(repo Repository, subsidies SubsidyReader) *Service {
	return &Service{repo: repo, subsidies: subsidies, now: time.Now}
}

// Get returns a policy by UUID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return s.repo.GetByUUID(ctx, id)
}

// Create validates and stores a new policy.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Policy, error) {
	if errs := validator.Validate(req); errs != nil {
		return nil, &ValidationError{Err: ErrInvalidRequest, Message: "invalid policy request", Fields: errs}
	}

	now := s.now().UTC()
	p := &Policy{
		UUID:                        uuid.New(),
		PolicyType:                  Type(req.PolicyType),
		EnterpriseCustomerUUID:      req.EnterpriseCustomerUUID,
		CatalogUUID:                 req.CatalogUUID,
		SubsidyUUID:                 req.SubsidyUUID,
		AccessMethod:                AccessMethod(req.AccessMethod),
		DisplayName:                 req.DisplayName,
		Description:                 req.Description,
		Active:                      req.Active,
		Retired:                     req.Retired,
		SpendLimit:                  req.SpendLimit,
		PerLearnerEnrollmentLimit:   req.PerLearnerEnrollmentLimit,
		PerLearnerSpendLimit:        req.PerLearnerSpendLimit,
		AssignmentConfigurationUUID: req.AssignmentConfigurationUUID,
		LateRedemptionAllowedUntil:  req.LateRedemptionAllowedUntil,
		GroupUUIDs:                  req.GroupUUIDs,
		Created:                     now,
		Modified:                    now,
	}
	if p.GroupUUIDs == nil {
		p.GroupUUIDs = []uuid.UUID{}
	}
	if p.Retired {
		p.RetiredAt = &now
	}
	if p.IsAssignable() {
		p.AccessMethod = AccessMethodAssigned
		if p.AssignmentConfigurationUUID == nil {
			configUUID := uuid.New()
			p.AssignmentConfigurationUUID = &configUUID
		}
	} else if p.AccessMethod == "" {
		p.AccessMethod = AccessMethodDirect
	}

	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("policy_uuid", p.UUID.String()).
		Str("policy_type", string(p.PolicyType)).
		Msg("policy created")
	return p, nil
}

// Update applies a partial update after validating the result.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*Policy, error) {
	if errs := validator.Validate(req); errs != nil {
		return nil, &ValidationError{Err: ErrInvalidRequest, Message: "invalid policy request", Fields: errs}
	}

	p, err := s.repo.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if req.CatalogUUID != nil {
		p.CatalogUUID = *req.CatalogUUID
	}
	if req.SubsidyUUID != nil {
		p.SubsidyUUID = *req.SubsidyUUID
	}
	if req.AccessMethod != nil {
		p.AccessMethod = AccessMethod(*req.AccessMethod)
	}
	if req.DisplayName != nil {
		p.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.Retired != nil {
		if *req.Retired && !p.Retired {
			p.RetiredAt = &now
		}
		if !*req.Retired {
			p.RetiredAt = nil
		}
		p.Retired = *req.Retired
	}
	if req.SpendLimit != nil {
		p.SpendLimit = req.SpendLimit
	}
	if req.PerLearnerEnrollmentLimit != nil {
		p.PerLearnerEnrollmentLimit = req.PerLearnerEnrollmentLimit
	}
	if req.PerLearnerSpendLimit != nil {
		p.PerLearnerSpendLimit = req.PerLearnerSpendLimit
	}
	if req.LateRedemptionAllowedUntil != nil {
		p.LateRedemptionAllowedUntil = req.LateRedemptionAllowedUntil
	}
	if req.GroupUUIDs != nil {
		p.GroupUUIDs = *req.GroupUUIDs
	}
	p.Modified = now

	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) validate(ctx context.Context, p *Policy) error {
	if err := ValidateFieldsForType(p); err != nil {
		return err
	}
	return s.ValidateSpendLimitSum(ctx, p)
}

// ValidateFieldsForType rejects per-learner fields that belong to another variant.
// Inactive policies are not checked.
func ValidateFieldsForType(p *Policy) error {
	if !p.PolicyType.Valid() {
		return &ValidationError{Err: ErrInvalidPolicyType, Field: "policy_type", Message: fmt.Sprintf("unknown policy type %q", p.PolicyType)}
	}
	if !p.Active {
		return nil
	}

	switch p.PolicyType {
	case TypePerLearnerEnrollmentCap:
		if p.PerLearnerSpendLimit != nil {
			return &ValidationError{
				Err:     ErrFieldNotAllowedForType,
				Field:   "per_learner_spend_limit",
				Message: fmt.Sprintf("%s must not define a per-learner spend limit.", p.PolicyType),
			}
		}
	case TypePerLearnerSpendCap:
		if p.PerLearnerEnrollmentLimit != nil {
			return &ValidationError{
				Err:     ErrFieldNotAllowedForType,
				Field:   "per_learner_enrollment_limit",
				Message: fmt.Sprintf("%s must not define a per-learner enrollment limit.", p.PolicyType),
			}
		}
	}
	return nil
}

// ValidateSpendLimitSum checks that active spend limits on p's subsidy fit within its deposits.
// Inactive policies neither contribute to the sum nor are checked.
func (s *Service) ValidateSpendLimitSum(ctx context.Context, p *Policy) error {
	if !p.Active {
		return nil
	}

	sub, err := s.subsidies.RetrieveSubsidy(ctx, p.SubsidyUUID)
	if err != nil {
		return fmt.Errorf("retrieve subsidy %s: %w", p.SubsidyUUID, err)
	}

	siblings, err := s.repo.ListActiveForSubsidy(ctx, p.SubsidyUUID)
	if err != nil {
		return err
	}

	total := p.SpendLimitOrZero()
	for _, other := range siblings {
		if other.UUID == p.UUID || !other.Active {
			continue
		}
		total += other.SpendLimitOrZero()
	}

	if total > sub.TotalDeposits {
		return &ValidationError{
			Err:   ErrSpendLimitExceedsDeposits,
			Field: "spend_limit",
			Message: fmt.Sprintf(
				"sum of active policy spend limits (%d) would exceed the subsidy's total deposits (%d)",
				total, sub.TotalDeposits,
			),
		}
	}
	return nil
}
