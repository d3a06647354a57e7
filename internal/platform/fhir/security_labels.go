package fhir

// Data sensitivity labels from the HL7 v3 ActCode code system.
const (
	LabelHIV = "HIV" // HIV/AIDS
	LabelPSY = "PSY" // psychiatry
	LabelETH = "ETH" // substance abuse
	LabelSTD = "STD" // sexually transmitted disease
)

// Confidentiality classification labels.
const (
	LabelNormal     = "N"
	LabelRestricted = "R"
)

// SecurityLabelSystem is the FHIR code system URI for confidentiality classifications.
const SecurityLabelSystem = "http://terminology.hl7.org/CodeSystem/v3-Confidentiality"

// ActCodeSystem is the FHIR code system URI for act codes including sensitivity labels.
const ActCodeSystem = "http://terminology.hl7.org/CodeSystem/v3-ActCode"

// HasSecurityLabel reports whether meta carries code from system in meta.security.
func HasSecurityLabel(meta *Meta, system, code string) bool {
	if meta == nil {
		return false
	}
	for _, s := range meta.Security {
		if s.System == system && s.Code == code {
			return true
		}
	}
	return false
}
