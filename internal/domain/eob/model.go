package eob

import (
	"time"

	"github.com/bluebutton/bluebutton/internal/platform/fhir"
)

// Code systems stamped onto every ExplanationOfBenefit.
const (
	EOBTypeSystem        = "https://bluebutton.cms.gov/resources/codesystem/eob-type"
	ClaimIDSystem        = "https://bluebutton.cms.gov/resources/variables/clm_id"
	ClaimGroupSystem     = "https://bluebutton.cms.gov/resources/identifier/claim-group"
	NCHClaimTypeSystem   = "https://bluebutton.cms.gov/resources/variables/nch_clm_type_cd"
	FHIRClaimTypeSystem  = "http://terminology.hl7.org/CodeSystem/claim-type"
	ICD10System          = "http://hl7.org/fhir/sid/icd-10-cm"
	ICD9System           = "http://hl7.org/fhir/sid/icd-9-cm"
	HCPCSSystem          = "https://bluebutton.cms.gov/resources/codesystem/hcpcs"
	RevenueCenterSystem  = "https://bluebutton.cms.gov/resources/variables/rev_cntr"
	DRGSystem            = "https://bluebutton.cms.gov/resources/variables/clm_drg_cd"
	NDCSystem            = "http://hl7.org/fhir/sid/ndc"
	NPISystem            = "http://hl7.org/fhir/sid/us-npi"
	ProviderNumberSystem = "https://bluebutton.cms.gov/resources/variables/prvdr_num"
)

// ClaimRecord is one claim header row as stored, with its eagerly loaded
// lines. Columns a claim type does not carry are left nil.
type ClaimRecord struct {
	ClaimID          string
	BeneficiaryID    string
	ClaimGroupID     *string
	NCHClaimTypeCode *string
	DateFrom         *time.Time
	DateThrough      *time.Time
	PaymentAmount    float64
	ProviderNumber   *string
	ProductCode      *string
	DRGCode          *string
	DiagnosisVersion *string
	DiagnosisCodes   []string
	Lines            []ClaimLine
}

// ClaimLine is one line item of a claim.
type ClaimLine struct {
	Number        int
	HCPCSCode     *string
	RevenueCenter *string
	PaymentAmount float64
}

// ExplanationOfBenefit is the FHIR R4 resource every claim type is
// transformed into.
type ExplanationOfBenefit struct {
	ResourceType   string               `json:"resourceType"`
	ID             string               `json:"id"`
	Meta           *fhir.Meta           `json:"meta,omitempty"`
	Identifier     []fhir.Identifier    `json:"identifier"`
	Status         string               `json:"status"`
	Type           fhir.CodeableConcept `json:"type"`
	Use            string               `json:"use"`
	Patient        fhir.Reference       `json:"patient"`
	BillablePeriod *fhir.Period         `json:"billablePeriod,omitempty"`
	Provider       *fhir.Reference      `json:"provider,omitempty"`
	Outcome        string               `json:"outcome"`
	Diagnosis      []Diagnosis          `json:"diagnosis,omitempty"`
	Item           []Item               `json:"item,omitempty"`
	Payment        *Payment             `json:"payment,omitempty"`
}

type Diagnosis struct {
	Sequence                 int                   `json:"sequence"`
	DiagnosisCodeableConcept fhir.CodeableConcept  `json:"diagnosisCodeableConcept"`
	PackageCode              *fhir.CodeableConcept `json:"packageCode,omitempty"`
}

type Item struct {
	Sequence         int                   `json:"sequence"`
	Revenue          *fhir.CodeableConcept `json:"revenue,omitempty"`
	ProductOrService fhir.CodeableConcept  `json:"productOrService"`
	Net              *fhir.Money           `json:"net,omitempty"`
}

type Payment struct {
	Amount fhir.Money `json:"amount"`
}

// ClaimType returns the claim type tag recorded in the resource's type.
func (e *ExplanationOfBenefit) ClaimType() string {
	return e.Type.CodeFor(EOBTypeSystem)
}

// ClaimID returns the claim id without its claim type prefix.
func (e *ExplanationOfBenefit) ClaimID() string {
	for _, id := range e.Identifier {
		if id.System == ClaimIDSystem {
			return id.Value
		}
	}
	return ""
}
