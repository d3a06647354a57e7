package eob

import (
	"fmt"
	"regexp"
)

// eobIDPattern matches "<claimType>-<claimID>" with ASCII letters for the
// claim type and ASCII letters or digits for the claim id.
var eobIDPattern = regexp.MustCompile(`^([[:alpha:]]+)-([[:alnum:]]+)$`)

// EOBID is the decoded form of an ExplanationOfBenefit resource id.
type EOBID struct {
	ClaimType *ClaimType
	ClaimID   string
}

// String renders the id in its external form.
func (id EOBID) String() string {
	return BuildEOBID(id.ClaimType, id.ClaimID)
}

// BuildEOBID returns the external id of the claim with the given key.
func BuildEOBID(ct *ClaimType, claimID string) string {
	return ct.Tag + "-" + claimID
}

// ParseEOBID decodes an external id. It never touches storage.
func ParseEOBID(s string) (EOBID, error) {
	m := eobIDPattern.FindStringSubmatch(s)
	if m == nil {
		return EOBID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	ct, ok := ClaimTypeFor(m[1])
	if !ok {
		return EOBID{}, fmt.Errorf("%w: %q", ErrUnknownClaimType, m[1])
	}
	return EOBID{ClaimType: ct, ClaimID: m[2]}, nil
}
