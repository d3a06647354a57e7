package eob

import "errors"

var (
	// ErrNotFound is returned when no claim answers to an identifier,
	// including identifiers that are malformed or name an unknown claim type.
	ErrNotFound = errors.New("explanation of benefit not found")
	// ErrMalformedIdentifier is returned by ParseEOBID for strings that are
	// not of the form "<claimType>-<claimID>".
	ErrMalformedIdentifier = errors.New("malformed explanation of benefit id")
	// ErrUnknownClaimType is returned by ParseEOBID for well-formed ids whose
	// claim type is not registered.
	ErrUnknownClaimType = errors.New("unknown claim type")
	// ErrInvalidRequest is returned for search requests that are missing
	// required criteria.
	ErrInvalidRequest = errors.New("invalid request")
)
