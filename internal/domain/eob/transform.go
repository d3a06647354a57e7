package eob

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/bluebutton/bluebutton/internal/platform/fhir"
	"github.com/bluebutton/bluebutton/pkg/fhirmodels"
)

// newEOB fills the parts of an ExplanationOfBenefit shared by every claim type.
func newEOB(ct *ClaimType, rec *ClaimRecord) (*ExplanationOfBenefit, error) {
	if rec == nil {
		return nil, errors.New("nil claim record")
	}
	if rec.ClaimID == "" {
		return nil, fmt.Errorf("%s claim has no id", ct.Tag)
	}
	if rec.BeneficiaryID == "" {
		return nil, fmt.Errorf("%s claim %s has no beneficiary", ct.Tag, rec.ClaimID)
	}

	e := &ExplanationOfBenefit{
		ResourceType: "ExplanationOfBenefit",
		ID:           BuildEOBID(ct, rec.ClaimID),
		Identifier: []fhir.Identifier{
			{System: ClaimIDSystem, Value: rec.ClaimID},
		},
		Status: fhirmodels.EOBStatusActive,
		Type: fhir.CodeableConcept{Coding: []fhir.Coding{
			{System: EOBTypeSystem, Code: ct.Tag},
			{System: FHIRClaimTypeSystem, Code: ct.FHIRClaimType},
		}},
		Use:     fhirmodels.UseClaim,
		Patient: fhir.Reference{Reference: fhir.FormatReference("Patient", rec.BeneficiaryID)},
		Outcome: fhirmodels.OutcomeComplete,
		Payment: &Payment{Amount: fhir.Money{Value: rec.PaymentAmount, Currency: fhirmodels.CurrencyUSD}},
	}

	if rec.ClaimGroupID != nil {
		e.Identifier = append(e.Identifier, fhir.Identifier{System: ClaimGroupSystem, Value: *rec.ClaimGroupID})
	}
	if rec.NCHClaimTypeCode != nil {
		e.Type.Coding = append(e.Type.Coding, fhir.Coding{System: NCHClaimTypeSystem, Code: *rec.NCHClaimTypeCode})
	}
	if rec.DateFrom != nil || rec.DateThrough != nil {
		e.BillablePeriod = &fhir.Period{Start: rec.DateFrom, End: rec.DateThrough}
	}
	return e, nil
}

func transformProfessional(ct *ClaimType, rec *ClaimRecord) (*ExplanationOfBenefit, error) {
	e, err := newEOB(ct, rec)
	if err != nil {
		return nil, err
	}
	if rec.ProviderNumber != nil {
		e.Provider = &fhir.Reference{Identifier: &fhir.Identifier{System: NPISystem, Value: *rec.ProviderNumber}}
	}
	e.Diagnosis = diagnoses(rec)
	e.Item = lineItems(rec.Lines)
	return e, nil
}

func transformInstitutional(ct *ClaimType, rec *ClaimRecord) (*ExplanationOfBenefit, error) {
	e, err := newEOB(ct, rec)
	if err != nil {
		return nil, err
	}
	if rec.ProviderNumber != nil {
		e.Provider = &fhir.Reference{Identifier: &fhir.Identifier{System: ProviderNumberSystem, Value: *rec.ProviderNumber}}
	}
	e.Diagnosis = diagnoses(rec)
	if rec.DRGCode != nil && len(e.Diagnosis) > 0 {
		e.Diagnosis[0].PackageCode = &fhir.CodeableConcept{Coding: []fhir.Coding{
			{System: DRGSystem, Code: *rec.DRGCode},
		}}
	}
	e.Item = lineItems(rec.Lines)
	return e, nil
}

// transformPartD renders a Part D event. The event is its own single line,
// identified by the dispensed product's NDC.
func transformPartD(ct *ClaimType, rec *ClaimRecord) (*ExplanationOfBenefit, error) {
	e, err := newEOB(ct, rec)
	if err != nil {
		return nil, err
	}
	if rec.ProviderNumber != nil {
		e.Provider = &fhir.Reference{Identifier: &fhir.Identifier{System: NPISystem, Value: *rec.ProviderNumber}}
	}
	if rec.ProductCode != nil {
		e.Item = []Item{{
			Sequence: 1,
			ProductOrService: fhir.CodeableConcept{Coding: []fhir.Coding{
				{System: NDCSystem, Code: *rec.ProductCode},
			}},
			Net: &fhir.Money{Value: rec.PaymentAmount, Currency: fhirmodels.CurrencyUSD},
		}}
	}
	return e, nil
}

func diagnoses(rec *ClaimRecord) []Diagnosis {
	if len(rec.DiagnosisCodes) == 0 {
		return nil
	}
	out := make([]Diagnosis, 0, len(rec.DiagnosisCodes))
	for _, code := range rec.DiagnosisCodes {
		if code == "" {
			continue
		}
		out = append(out, Diagnosis{
			Sequence: len(out) + 1,
			DiagnosisCodeableConcept: fhir.CodeableConcept{Coding: []fhir.Coding{
				{System: diagnosisSystem(rec.DiagnosisVersion, code), Code: code},
			}},
		})
	}
	return out
}

// diagnosisSystem picks ICD-9 when the claim says so ("9"), ICD-10 when it
// says "0", and otherwise guesses from the code: ICD-10-CM codes always
// start with a letter.
func diagnosisSystem(version *string, code string) string {
	if version != nil {
		switch *version {
		case "9":
			return ICD9System
		case "0":
			return ICD10System
		}
	}
	if unicode.IsDigit(rune(code[0])) {
		return ICD9System
	}
	return ICD10System
}

func lineItems(lines []ClaimLine) []Item {
	if len(lines) == 0 {
		return nil
	}
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		item := Item{
			Sequence: l.Number,
			Net:      &fhir.Money{Value: l.PaymentAmount, Currency: fhirmodels.CurrencyUSD},
		}
		if l.HCPCSCode != nil {
			item.ProductOrService.Coding = []fhir.Coding{{System: HCPCSSystem, Code: *l.HCPCSCode}}
		}
		if l.RevenueCenter != nil {
			item.Revenue = &fhir.CodeableConcept{Coding: []fhir.Coding{
				{System: RevenueCenterSystem, Code: *l.RevenueCenter},
			}}
		}
		items = append(items, item)
	}
	return items
}
