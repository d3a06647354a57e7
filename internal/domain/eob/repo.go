package eob

import "context"

// ClaimFinder loads claims of one claim type, with their lines, from storage.
type ClaimFinder interface {
	// FindByID returns the claim keyed by claimID, or ErrNotFound.
	FindByID(ctx context.Context, ct *ClaimType, claimID string) (*ClaimRecord, error)
	// FindByBeneficiary returns every claim owned by the beneficiary, each
	// exactly once.
	FindByBeneficiary(ctx context.Context, ct *ClaimType, beneficiaryID string) ([]*ClaimRecord, error)
}
