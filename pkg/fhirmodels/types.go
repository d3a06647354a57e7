package fhirmodels

// FHIR R4 value set codes used by the ExplanationOfBenefit transformers.

// ExplanationOfBenefitStatus values per FHIR R4.
const (
	EOBStatusActive         = "active"
	EOBStatusCancelled      = "cancelled"
	EOBStatusDraft          = "draft"
	EOBStatusEnteredInError = "entered-in-error"
)

// Use codes: what the claim was submitted as.
const (
	UseClaim            = "claim"
	UsePreauthorization = "preauthorization"
	UsePredetermination = "predetermination"
)

// RemittanceOutcome codes.
const (
	OutcomeQueued   = "queued"
	OutcomeComplete = "complete"
	OutcomeError    = "error"
	OutcomePartial  = "partial"
)

// ClaimType codes from http://terminology.hl7.org/CodeSystem/claim-type.
const (
	ClaimTypeInstitutional = "institutional"
	ClaimTypeOral          = "oral"
	ClaimTypePharmacy      = "pharmacy"
	ClaimTypeProfessional  = "professional"
	ClaimTypeVision        = "vision"
)

// CurrencyUSD is the only currency Medicare amounts are reported in.
const CurrencyUSD = "USD"
