/*
referral.go - One-time referral bonus rule

PURPOSE:
  When a referred user creates their FIRST investment, the referrer is
  credited a fixed bonus (wallet + referral earnings) exactly once. The
  referred user's referralBonusPaid flag is the re-entry guard: checked
  before crediting, set in the same store transaction as the credit, and
  never set twice.

  The bonus fires at investment creation, not at payment confirmation.
  A referrer can therefore earn the bonus for an investment that is
  never funded. That is the product's current behavior, kept on purpose;
  see DESIGN.md for the policy discussion.

SEE ALSO:
  - store.go: GrantReferralBonus contract
  - types.go: ReferralBonus amount
*/
package invest

import (
	"context"
)

// QualifiesForReferralBonus reports whether creating an investment for u
// should trigger the bonus. This is the precondition; the store's
// flag compare-and-set is the authoritative idempotence guard under
// concurrent creation.
func QualifiesForReferralBonus(u User) bool {
	return u.ReferredBy != nil && !u.ReferralBonusPaid
}

// MaybeGrantReferralBonus applies the rule for the referred user after
// their investment was created. Returns whether a bonus was granted.
// A (false, nil) return means the guard declined: no referrer, or the
// bonus was already paid.
func MaybeGrantReferralBonus(ctx context.Context, store UserStore, referredUserID UserID) (bool, error) {
	return store.GrantReferralBonus(ctx, referredUserID)
}
