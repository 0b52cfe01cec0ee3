package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

type memRepo struct {
	policies map[uuid.UUID]Policy
}

func newMemRepo(seed ...*Policy) *memRepo {
	r := &memRepo{policies: map[uuid.UUID]Policy{}}
	for _, p := range seed {
		r.policies[p.UUID] = *p
	}
	return r
}

func (r *memRepo) Create(_ context.Context, p *Policy) error {
	r.policies[p.UUID] = *p
	return nil
}

func (r *memRepo) Update(_ context.Context, p *Policy) error {
	if _, ok := r.policies[p.UUID]; !ok {
		return ErrPolicyNotFound
	}
	r.policies[p.UUID] = *p
	return nil
}

func (r *memRepo) GetByUUID(_ context.Context, id uuid.UUID) (*Policy, error) {
	p, ok := r.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return &p, nil
}

func (r *memRepo) ListActiveForEnterprise(_ context.Context, enterpriseUUID uuid.UUID) ([]*Policy, error) {
	var out []*Policy
	for _, p := range r.policies {
		p := p
		if p.EnterpriseCustomerUUID == enterpriseUUID && p.IsRedeemable() {
			out = append(out, &p)
		}
	}
	SortStable(out)
	return out, nil
}

func (r *memRepo) ListActiveForSubsidy(_ context.Context, subsidyUUID uuid.UUID) ([]*Policy, error) {
	var out []*Policy
	for _, p := range r.policies {
		p := p
		if p.SubsidyUUID == subsidyUUID && p.Active {
			out = append(out, &p)
		}
	}
	SortStable(out)
	return out, nil
}

type subsidyStub struct {
	totalDeposits int64
}

func (s subsidyStub) RetrieveSubsidy(_ context.Context, id uuid.UUID) (*subsidy.Subsidy, error) {
	return &subsidy.Subsidy{UUID: id, TotalDeposits: s.totalDeposits}, nil
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestValidateFieldsForType(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantMsg string
	}{
		{
			name:    "enrollment cap with spend limit",
			policy:  Policy{PolicyType: TypePerLearnerEnrollmentCap, Active: true, PerLearnerSpendLimit: int64Ptr(30000)},
			wantMsg: "must not define a per-learner spend limit",
		},
		{
			name:    "enrollment cap with both limits",
			policy:  Policy{PolicyType: TypePerLearnerEnrollmentCap, Active: true, PerLearnerSpendLimit: int64Ptr(30000), PerLearnerEnrollmentLimit: intPtr(10)},
			wantMsg: "must not define a per-learner spend limit",
		},
		{
			name:    "spend cap with enrollment limit",
			policy:  Policy{PolicyType: TypePerLearnerSpendCap, Active: true, PerLearnerEnrollmentLimit: intPtr(10)},
			wantMsg: "must not define a per-learner enrollment limit",
		},
		{
			name:   "enrollment cap with own limit",
			policy: Policy{PolicyType: TypePerLearnerEnrollmentCap, Active: true, PerLearnerEnrollmentLimit: intPtr(10)},
		},
		{
			name:   "spend cap with nil limit",
			policy: Policy{PolicyType: TypePerLearnerSpendCap, Active: true},
		},
		{
			name:   "inactive policy is not checked",
			policy: Policy{PolicyType: TypePerLearnerSpendCap, Active: false, PerLearnerEnrollmentLimit: intPtr(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldsForType(&tt.policy)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrFieldNotAllowedForType)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateFieldsForTypeUnknownType(t *testing.T) {
	err := ValidateFieldsForType(&Policy{PolicyType: "Nope", Active: true})
	assert.ErrorIs(t, err, ErrInvalidPolicyType)
}

func spendCapPolicy(subsidyUUID uuid.UUID, spendLimit int64, active bool) *Policy {
	return &Policy{
		UUID:                   uuid.New(),
		PolicyType:             TypePerLearnerSpendCap,
		EnterpriseCustomerUUID: uuid.New(),
		CatalogUUID:            uuid.New(),
		SubsidyUUID:            subsidyUUID,
		AccessMethod:           AccessMethodDirect,
		Active:                 active,
		SpendLimit:             int64Ptr(spendLimit),
		Created:                time.Now(),
	}
}

func TestUpdateRejectsSpendLimitSumOnActivePolicy(t *testing.T) {
	subsidyUUID := uuid.New()
	existing := spendCapPolicy(subsidyUUID, 5, true)
	svc := NewService(newMemRepo(existing), subsidyStub{totalDeposits: 4})

	_, err := svc.Update(context.Background(), existing.UUID, &UpdateRequest{
		Active:               boolPtr(true),
		SpendLimit:           int64Ptr(6),
		PerLearnerSpendLimit: int64Ptr(10000),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpendLimitExceedsDeposits))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "spend_limit", vErr.Field)
}

func TestUpdateAcceptsSpendLimitSumOnInactivePolicy(t *testing.T) {
	subsidyUUID := uuid.New()
	existing := spendCapPolicy(subsidyUUID, 5, true)
	svc := NewService(newMemRepo(existing), subsidyStub{totalDeposits: 4})

	updated, err := svc.Update(context.Background(), existing.UUID, &UpdateRequest{
		Active:               boolPtr(false),
		SpendLimit:           int64Ptr(6),
		PerLearnerSpendLimit: int64Ptr(10000),
	})

	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, int64(6), *updated.SpendLimit)
}

func TestSpendLimitSumIgnoresInactiveSiblings(t *testing.T) {
	subsidyUUID := uuid.New()
	inactive := spendCapPolicy(subsidyUUID, 1000, false)
	active := spendCapPolicy(subsidyUUID, 300, true)
	svc := NewService(newMemRepo(inactive, active), subsidyStub{totalDeposits: 1000})

	candidate := spendCapPolicy(subsidyUUID, 700, true)
	assert.NoError(t, svc.ValidateSpendLimitSum(context.Background(), candidate))

	candidate.SpendLimit = int64Ptr(701)
	assert.ErrorIs(t, svc.ValidateSpendLimitSum(context.Background(), candidate), ErrSpendLimitExceedsDeposits)
}

func TestCreateThenGetRoundTripsLimitFields(t *testing.T) {
	svc := NewService(newMemRepo(), subsidyStub{totalDeposits: 1_000_000})

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{
			name: "enrollment cap with nil limit",
			req:  CreateRequest{PolicyType: string(TypePerLearnerEnrollmentCap)},
		},
		{
			name: "enrollment cap with limit",
			req:  CreateRequest{PolicyType: string(TypePerLearnerEnrollmentCap), PerLearnerEnrollmentLimit: intPtr(10), SpendLimit: int64Ptr(0)},
		},
		{
			name: "spend cap with limit",
			req:  CreateRequest{PolicyType: string(TypePerLearnerSpendCap), PerLearnerSpendLimit: int64Ptr(30000), SpendLimit: int64Ptr(50000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.EnterpriseCustomerUUID = uuid.New()
			req.CatalogUUID = uuid.New()
			req.SubsidyUUID = uuid.New()
			req.Active = true

			created, err := svc.Create(context.Background(), &req)
			require.NoError(t, err)

			got, err := svc.Get(context.Background(), created.UUID)
			require.NoError(t, err)
			assert.Equal(t, req.SpendLimit, got.SpendLimit)
			assert.Equal(t, req.PerLearnerEnrollmentLimit, got.PerLearnerEnrollmentLimit)
			assert.Equal(t, req.PerLearnerSpendLimit, got.PerLearnerSpendLimit)
		})
	}
}

func TestCreateRejectsInvalidRequest(t *testing.T) {
	svc := NewService(newMemRepo(), subsidyStub{})

	_, err := svc.Create(context.Background(), &CreateRequest{PolicyType: "Nope"})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, vErr.Fields, "policy_type")
	assert.Contains(t, vErr.Fields, "subsidy_uuid")
}

func TestCreateAssignedPolicyGetsAssignmentConfiguration(t *testing.T) {
	svc := NewService(newMemRepo(), subsidyStub{totalDeposits: 100})

	p, err := svc.Create(context.Background(), &CreateRequest{
		PolicyType:             string(TypeAssignedLearnerCredit),
		EnterpriseCustomerUUID: uuid.New(),
		CatalogUUID:            uuid.New(),
		SubsidyUUID:            uuid.New(),
		Active:                 true,
		SpendLimit:             int64Ptr(100),
	})

	require.NoError(t, err)
	assert.Equal(t, AccessMethodAssigned, p.AccessMethod)
	require.NotNil(t, p.AssignmentConfigurationUUID)
}

func TestSortStableOrdersByCreatedThenUUID(t *testing.T) {
	now := time.Now()
	a := &Policy{UUID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Created: now}
	b := &Policy{UUID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Created: now}
	c := &Policy{UUID: uuid.MustParse("00000000-0000-0000-0000-000000000000"), Created: now.Add(time.Second)}

	policies := []*Policy{c, a, b}
	SortStable(policies)

	assert.Equal(t, []*Policy{b, a, c}, policies)
}

func TestIsLateRedemptionAllowed(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, (&Policy{LateRedemptionAllowedUntil: &future}).IsLateRedemptionAllowed(now))
	assert.False(t, (&Policy{LateRedemptionAllowedUntil: &past}).IsLateRedemptionAllowed(now))
	assert.False(t, (&Policy{}).IsLateRedemptionAllowed(now))
}
