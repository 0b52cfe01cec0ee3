package redemption

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

const (
	KeyKindBaseline  = "baseline"
	KeyKindVersioned = "versioned"
)

// BuildIdempotencyKey derives the ledger key for a redemption attempt.
// With no history it returns the baseline key. Otherwise the deduplicated, sorted
// history is mixed into the hash, so input order never changes the key.
func BuildIdempotencyKey(subsidyUUID uuid.UUID, lmsUserID int64, contentKey string, policyUUID uuid.UUID, historical []uuid.UUID) string {
	input := fmt.Sprintf("%s:%d:%s:%s", subsidyUUID, lmsUserID, contentKey, policyUUID)

	if canonical := canonicalUUIDs(historical); len(canonical) > 0 {
		input += ":" + strings.Join(canonical, ":")
	}

	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("ledger-for-subsidy-%s-%s", subsidyUUID, hex.EncodeToString(sum[:]))
}

func canonicalUUIDs(ids []uuid.UUID) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		s := id.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HistoricalRedemptionUUIDs picks the history to version a key with.
// transactions must already be narrowed to one (subsidy, learner, content, policy) tuple.
// Only voided transactions (failed, or committed with a committed reversal) are
// returned, in creation order. The outstanding attempt made after the same voided
// set was keyed with the same history, so retries keep deduplicating against it.
func HistoricalRedemptionUUIDs(transactions []subsidy.Transaction) []uuid.UUID {
	var ids []uuid.UUID
	for _, tx := range sortedTransactions(transactions) {
		if tx.State == subsidy.StateFailed || tx.IsReversed() {
			ids = append(ids, tx.UUID)
		}
	}
	return ids
}

func keyKind(historical []uuid.UUID) string {
	if len(historical) == 0 {
		return KeyKindBaseline
	}
	return KeyKindVersioned
}

// sortedTransactions returns a copy ordered by creation time, then UUID.
func sortedTransactions(transactions []subsidy.Transaction) []subsidy.Transaction {
	ordered := make([]subsidy.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.UUID.String() < b.UUID.String()
	})
	return ordered
}
