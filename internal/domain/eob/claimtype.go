package eob

import (
	"strings"

	"github.com/bluebutton/bluebutton/pkg/fhirmodels"
)

// TransformFunc converts a stored claim into its ExplanationOfBenefit.
type TransformFunc func(ct *ClaimType, rec *ClaimRecord) (*ExplanationOfBenefit, error)

// LineAssociation describes the line table a claim type's lines are loaded
// from, joined in the same query as the header.
type LineAssociation struct {
	Table         string
	ForeignKey    string
	NumberColumn  string
	HCPCSColumn   string
	RevenueColumn string // empty when lines carry no revenue center
	AmountColumn  string
}

// columnSet holds the SQL expression, over header alias c, for each
// ClaimRecord field. Fields a claim type lacks select a typed NULL.
type columnSet struct {
	ClaimGroupID     string
	NCHClaimTypeCode string
	DateFrom         string
	DateThrough      string
	PaymentAmount    string
	ProviderNumber   string
	ProductCode      string
	DRGCode          string
	DiagnosisVersion string
	DiagnosisCodes   string
}

func (cs columnSet) exprs() []string {
	return []string{
		cs.ClaimGroupID,
		cs.NCHClaimTypeCode,
		cs.DateFrom,
		cs.DateThrough,
		"COALESCE(" + cs.PaymentAmount + ", 0)::float8",
		cs.ProviderNumber,
		cs.ProductCode,
		cs.DRGCode,
		cs.DiagnosisVersion,
		"COALESCE(" + cs.DiagnosisCodes + ", '{}')::text[]",
	}
}

// ClaimType describes one kind of claim: where it is stored, which column
// identifies it, which column names its beneficiary, what must be loaded
// with it and how it becomes an ExplanationOfBenefit. ClaimTypes are built
// once at package init and never modified.
type ClaimType struct {
	Tag               string
	FHIRClaimType     string
	Table             string
	IDColumn          string
	BeneficiaryColumn string
	Lines             *LineAssociation
	Transform         TransformFunc

	columns       columnSet
	byIDSQL       string
	byBeneficiary string
}

// EagerAttributes names the collections loaded together with each claim.
func (ct *ClaimType) EagerAttributes() []string {
	if ct.Lines == nil {
		return nil
	}
	return []string{"lines"}
}

func (ct *ClaimType) String() string {
	return ct.Tag
}

func newClaimType(ct ClaimType) *ClaimType {
	ct.byIDSQL = ct.selectSQL(ct.IDColumn)
	ct.byBeneficiary = ct.selectSQL(ct.BeneficiaryColumn)
	return &ct
}

// selectSQL builds the single query that loads claims matching keyColumn
// together with their lines. A claim with n lines yields n rows.
func (ct *ClaimType) selectSQL(keyColumn string) string {
	cols := []string{"c." + ct.IDColumn, "c." + ct.BeneficiaryColumn}
	cols = append(cols, ct.columns.exprs()...)

	var b strings.Builder
	if ct.Lines == nil {
		cols = append(cols, "NULL::int", "NULL::text", "NULL::text", "NULL::float8")
		b.WriteString("SELECT " + strings.Join(cols, ", "))
		b.WriteString(" FROM " + ct.Table + " c")
		b.WriteString(" WHERE c." + keyColumn + " = $1")
		b.WriteString(" ORDER BY c." + ct.IDColumn)
		return b.String()
	}

	l := ct.Lines
	revenue := "NULL::text"
	if l.RevenueColumn != "" {
		revenue = "l." + l.RevenueColumn
	}
	cols = append(cols, "l."+l.NumberColumn, "l."+l.HCPCSColumn, revenue, "l."+l.AmountColumn+"::float8")
	b.WriteString("SELECT " + strings.Join(cols, ", "))
	b.WriteString(" FROM " + ct.Table + " c")
	b.WriteString(" LEFT JOIN " + l.Table + " l ON l." + l.ForeignKey + " = c." + ct.IDColumn)
	b.WriteString(" WHERE c." + keyColumn + " = $1")
	b.WriteString(" ORDER BY c." + ct.IDColumn + ", l." + l.NumberColumn)
	return b.String()
}

func professionalColumns() columnSet {
	return columnSet{
		ClaimGroupID:     "c.claim_group_id",
		NCHClaimTypeCode: "c.nch_claim_type_code",
		DateFrom:         "c.date_from",
		DateThrough:      "c.date_through",
		PaymentAmount:    "c.payment_amount",
		ProviderNumber:   "c.provider_npi",
		ProductCode:      "NULL::text",
		DRGCode:          "NULL::text",
		DiagnosisVersion: "c.diagnosis_version",
		DiagnosisCodes:   "c.diagnosis_codes",
	}
}

func institutionalColumns() columnSet {
	cs := professionalColumns()
	cs.ProviderNumber = "c.provider_number"
	return cs
}

func professionalLines(table string) *LineAssociation {
	return &LineAssociation{
		Table:        table,
		ForeignKey:   "claim_id",
		NumberColumn: "line_number",
		HCPCSColumn:  "hcpcs_code",
		AmountColumn: "payment_amount",
	}
}

func institutionalLines(table string) *LineAssociation {
	l := professionalLines(table)
	l.RevenueColumn = "revenue_center_code"
	return l
}

func institutional(tag, table, lineTable string) *ClaimType {
	return newClaimType(ClaimType{
		Tag:               tag,
		FHIRClaimType:     fhirmodels.ClaimTypeInstitutional,
		Table:             table,
		IDColumn:          "claim_id",
		BeneficiaryColumn: "beneficiary_id",
		Lines:             institutionalLines(lineTable),
		Transform:         transformInstitutional,
		columns:           institutionalColumns(),
	})
}

func professional(tag, table, lineTable string) *ClaimType {
	return newClaimType(ClaimType{
		Tag:               tag,
		FHIRClaimType:     fhirmodels.ClaimTypeProfessional,
		Table:             table,
		IDColumn:          "claim_id",
		BeneficiaryColumn: "beneficiary_id",
		Lines:             professionalLines(lineTable),
		Transform:         transformProfessional,
		columns:           professionalColumns(),
	})
}

func inpatient() *ClaimType {
	ct := institutional("inpatient", "inpatient_claims", "inpatient_claim_lines")
	ct.columns.DRGCode = "c.drg_code"
	return newClaimType(*ct)
}

func partD() *ClaimType {
	return newClaimType(ClaimType{
		Tag:               "pde",
		FHIRClaimType:     fhirmodels.ClaimTypePharmacy,
		Table:             "partd_events",
		IDColumn:          "event_id",
		BeneficiaryColumn: "beneficiary_id",
		Transform:         transformPartD,
		columns: columnSet{
			ClaimGroupID:     "c.claim_group_id",
			NCHClaimTypeCode: "NULL::text",
			DateFrom:         "c.prescription_fill_date",
			DateThrough:      "c.prescription_fill_date",
			PaymentAmount:    "c.total_prescription_cost",
			ProviderNumber:   "c.service_provider_id",
			ProductCode:      "c.national_drug_code",
			DRGCode:          "NULL::text",
			DiagnosisVersion: "NULL::text",
			DiagnosisCodes:   "NULL::text[]",
		},
	})
}

// claimTypes is the registry, in the order searches visit it.
var claimTypes = []*ClaimType{
	professional("carrier", "carrier_claims", "carrier_claim_lines"),
	professional("dme", "dme_claims", "dme_claim_lines"),
	institutional("hha", "hha_claims", "hha_claim_lines"),
	institutional("hospice", "hospice_claims", "hospice_claim_lines"),
	inpatient(),
	institutional("outpatient", "outpatient_claims", "outpatient_claim_lines"),
	partD(),
	institutional("snf", "snf_claims", "snf_claim_lines"),
}

var claimTypesByTag = func() map[string]*ClaimType {
	m := make(map[string]*ClaimType, len(claimTypes))
	for _, ct := range claimTypes {
		m[ct.Tag] = ct
	}
	return m
}()

// ClaimTypes returns every registered claim type in registry order.
func ClaimTypes() []*ClaimType {
	return append([]*ClaimType(nil), claimTypes...)
}

// ClaimTypeFor looks up a claim type by its exact tag.
func ClaimTypeFor(tag string) (*ClaimType, bool) {
	ct, ok := claimTypesByTag[tag]
	return ct, ok
}
