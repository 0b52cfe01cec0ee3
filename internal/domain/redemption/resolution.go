package redemption

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/policy"
)

// ResolutionSet is the ordered set of redeemable policies considered for one enterprise.
type ResolutionSet struct {
	policies []*policy.Policy
}

// NewResolutionSet keeps redeemable policies in (Created, UUID) order.
// When only is set, the set holds at most that policy.
func NewResolutionSet(policies []*policy.Policy, only *uuid.UUID) *ResolutionSet {
	kept := make([]*policy.Policy, 0, len(policies))
	for _, p := range policies {
		if !p.IsRedeemable() {
			continue
		}
		if only != nil && p.UUID != *only {
			continue
		}
		kept = append(kept, p)
	}
	policy.SortStable(kept)
	return &ResolutionSet{policies: kept}
}

func (s *ResolutionSet) Policies() []*policy.Policy {
	return s.policies
}

func (s *ResolutionSet) PolicyUUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.policies))
	for i, p := range s.policies {
		ids[i] = p.UUID
	}
	return ids
}

// SubsidyUUIDs returns each distinct subsidy once, in policy order.
func (s *ResolutionSet) SubsidyUUIDs() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	var ids []uuid.UUID
	for _, p := range s.policies {
		if _, ok := seen[p.SubsidyUUID]; ok {
			continue
		}
		seen[p.SubsidyUUID] = struct{}{}
		ids = append(ids, p.SubsidyUUID)
	}
	return ids
}

func (s *ResolutionSet) Contains(policyUUID uuid.UUID) bool {
	for _, p := range s.policies {
		if p.UUID == policyUUID {
			return true
		}
	}
	return false
}

// Candidates returns the policies whose catalog contains contentKey, preserving order.
// Catalog answers are shared between policies that point at the same catalog.
func (s *ResolutionSet) Candidates(ctx context.Context, cat Catalog, contentKey string) ([]*policy.Policy, error) {
	contains := map[uuid.UUID]bool{}
	var out []*policy.Policy
	for _, p := range s.policies {
		ok, seen := contains[p.CatalogUUID]
		if !seen {
			var err error
			ok, err = cat.ContainsContentKey(ctx, p.CatalogUUID, contentKey)
			if err != nil {
				return nil, fmt.Errorf("catalog contains %s: %w", contentKey, err)
			}
			contains[p.CatalogUUID] = ok
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}
