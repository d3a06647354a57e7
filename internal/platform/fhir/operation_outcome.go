package fhir

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeSecurity     = "security"
	IssueTypeLogin        = "login"
	IssueTypeForbidden    = "forbidden"
	IssueTypeNotSupported = "not-supported"
	IssueTypeException    = "exception"
	IssueTypeTimeout      = "timeout"
)

var validIssueTypes = map[string]bool{
	IssueTypeInvalid:      true,
	IssueTypeNotFound:     true,
	IssueTypeProcessing:   true,
	IssueTypeSecurity:     true,
	IssueTypeLogin:        true,
	IssueTypeForbidden:    true,
	IssueTypeNotSupported: true,
	IssueTypeException:    true,
	IssueTypeTimeout:      true,
}

// IsValidIssueType checks whether a code string is a known FHIR issue type.
func IsValidIssueType(code string) bool {
	return validIssueTypes[code]
}

// HasErrors reports whether any issue is fatal or error severity.
func (o *OperationOutcome) HasErrors() bool {
	for _, iss := range o.Issue {
		if iss.Severity == IssueSeverityFatal || iss.Severity == IssueSeverityError {
			return true
		}
	}
	return false
}
