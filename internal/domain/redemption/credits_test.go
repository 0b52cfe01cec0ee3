package redemption

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/lms"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

func TestCreditsAvailable(t *testing.T) {
	f := newFixture(t)
	other := func(tx *subsidy.Transaction) { tx.ContentKey = "edX+Other" }

	capped := f.addPolicy(policy.TypeCappedEnrollment, func(p *policy.Policy) { p.SpendLimit = int64Ptr(50000) })
	spendCap := f.addPolicy(policy.TypePerLearnerSpendCap, func(p *policy.Policy) { p.PerLearnerSpendLimit = int64Ptr(30000) })
	f.addTransaction(spendCap, subsidy.StateCommitted, -10000, other)

	exhausted := f.addPolicy(policy.TypePerLearnerEnrollmentCap, func(p *policy.Policy) { p.PerLearnerEnrollmentLimit = intPtr(1) })
	f.addTransaction(exhausted, subsidy.StateCommitted, -100, other)

	f.addPolicy(policy.TypeAssignedLearnerCredit)
	f.addPolicy(policy.TypeCappedEnrollment, func(p *policy.Policy) { p.GroupUUIDs = []uuid.UUID{uuid.New()} })
	f.addPolicy(policy.TypeCappedEnrollment, func(p *policy.Policy) { p.SpendLimit = int64Ptr(0) })

	credits, err := f.svc.CreditsAvailable(context.Background(), f.enterpriseUUID, testLearner)
	require.NoError(t, err)
	require.Len(t, credits, 2)

	assert.Equal(t, capped.UUID, credits[0].Policy.UUID)
	assert.Equal(t, int64(50000), credits[0].RemainingBalance)
	assert.Nil(t, credits[0].RemainingBalancePerUser)

	assert.Equal(t, spendCap.UUID, credits[1].Policy.UUID)
	require.NotNil(t, credits[1].RemainingBalancePerUser)
	assert.Equal(t, int64(20000), *credits[1].RemainingBalancePerUser)
}

func TestCreditsAvailable_InactiveSubsidy(t *testing.T) {
	f := newFixture(t)
	f.addPolicy(policy.TypeCappedEnrollment)
	expired := f.now.Add(-time.Hour)
	f.ledger.subsidies[f.subsidyUUID].ExpirationDatetime = &expired

	credits, err := f.svc.CreditsAvailable(context.Background(), f.enterpriseUUID, testLearner)
	require.NoError(t, err)
	assert.Empty(t, credits)
}

func TestCreditsAvailable_NotAMember(t *testing.T) {
	f := newFixture(t)
	f.addPolicy(policy.TypeCappedEnrollment)
	f.identity.users = map[int64]*lms.EnterpriseUser{}

	credits, err := f.svc.CreditsAvailable(context.Background(), f.enterpriseUUID, testLearner)
	require.NoError(t, err)
	assert.Empty(t, credits)
	assert.Zero(t, f.ledger.subsidyCalls)
}
