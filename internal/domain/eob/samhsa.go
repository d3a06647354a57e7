package eob

import (
	"strings"

	"github.com/bluebutton/bluebutton/internal/platform/fhir"
)

// SensitivityFilter decides whether a resource must be withheld when the
// caller asks for sensitive content to be excluded.
type SensitivityFilter interface {
	Matches(e *ExplanationOfBenefit) bool
}

// SensitivityFilterFunc adapts a plain function to SensitivityFilter.
type SensitivityFilterFunc func(e *ExplanationOfBenefit) bool

func (f SensitivityFilterFunc) Matches(e *ExplanationOfBenefit) bool { return f(e) }

// SamhsaMatcher flags claims related to substance abuse treatment
// (42 CFR Part 2).
type SamhsaMatcher struct {
	icd10Prefixes []string
	icd9Prefixes  []string
	icd9Excluded  []string
	hcpcs         map[string]bool
	drg           map[string]bool
}

// NewSamhsaMatcher returns a matcher loaded with the substance abuse
// diagnosis, procedure and DRG code sets.
func NewSamhsaMatcher() *SamhsaMatcher {
	return &SamhsaMatcher{
		// F10-F19 mental and behavioral disorders due to psychoactive
		// substance use, except F17 nicotine dependence.
		icd10Prefixes: []string{"F10", "F11", "F12", "F13", "F14", "F15", "F16", "F18", "F19"},
		// 291 alcohol-induced mental disorders, 292 drug-induced mental
		// disorders, 303 alcohol dependence, 304 drug dependence,
		// 305 nondependent abuse except 305.1 tobacco use disorder.
		icd9Prefixes: []string{"291", "292", "303", "304", "305"},
		icd9Excluded: []string{"3051"},
		hcpcs: toSet(
			"H0001", "H0005", "H0007", "H0015", "H0016", "H0020", "H0047", "H0050",
			"G0396", "G0397", "T1006", "T1007",
		),
		drg: toSet("894", "895", "896", "897"),
	}
}

func toSet(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// normalizeCode strips the dot and upper-cases a diagnosis or procedure code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), ".", ""))
}

func (m *SamhsaMatcher) Matches(e *ExplanationOfBenefit) bool {
	if e == nil {
		return false
	}
	if fhir.HasSecurityLabel(e.Meta, fhir.ActCodeSystem, fhir.LabelETH) {
		return true
	}
	for _, d := range e.Diagnosis {
		for _, c := range d.DiagnosisCodeableConcept.Coding {
			if m.isSensitiveDiagnosis(c) {
				return true
			}
		}
		if d.PackageCode != nil {
			if code := d.PackageCode.CodeFor(DRGSystem); code != "" && m.drg[strings.TrimLeft(code, "0")] {
				return true
			}
		}
	}
	for _, item := range e.Item {
		if code := item.ProductOrService.CodeFor(HCPCSSystem); code != "" && m.hcpcs[normalizeCode(code)] {
			return true
		}
	}
	return false
}

func (m *SamhsaMatcher) isSensitiveDiagnosis(c fhir.Coding) bool {
	code := normalizeCode(c.Code)
	switch c.System {
	case ICD10System:
		return hasAnyPrefix(code, m.icd10Prefixes)
	case ICD9System:
		return hasAnyPrefix(code, m.icd9Prefixes) && !hasAnyPrefix(code, m.icd9Excluded)
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
