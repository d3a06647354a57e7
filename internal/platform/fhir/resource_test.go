package fhir

import (
	"encoding/json"
	"testing"
)

func TestOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		outcome  *OperationOutcome
		wantCode string
	}{
		{"error", ErrorOutcome("boom"), IssueTypeException},
		{"invalid", InvalidOutcome("bad _count"), IssueTypeInvalid},
		{"not found", NotFoundOutcome("ExplanationOfBenefit", "carrier-1"), IssueTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.outcome.ResourceType != "OperationOutcome" {
				t.Errorf("expected OperationOutcome, got %s", tt.outcome.ResourceType)
			}
			if len(tt.outcome.Issue) != 1 {
				t.Fatalf("expected 1 issue, got %d", len(tt.outcome.Issue))
			}
			if tt.outcome.Issue[0].Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.outcome.Issue[0].Code)
			}
			if !IsValidIssueType(tt.outcome.Issue[0].Code) {
				t.Errorf("issue code %s should be valid", tt.outcome.Issue[0].Code)
			}
			if !tt.outcome.HasErrors() {
				t.Error("expected HasErrors to be true")
			}
		})
	}
}

func TestNotFoundOutcome_Diagnostics(t *testing.T) {
	o := NotFoundOutcome("ExplanationOfBenefit", "pde-42")
	if o.Issue[0].Diagnostics != "ExplanationOfBenefit/pde-42 not found" {
		t.Errorf("unexpected diagnostics %q", o.Issue[0].Diagnostics)
	}
}

func TestCodeableConcept_Lookup(t *testing.T) {
	cc := &CodeableConcept{Coding: []Coding{
		{System: "http://a", Code: "1"},
		{System: "http://b", Code: "2"},
	}}

	if got := cc.CodeFor("http://b"); got != "2" {
		t.Errorf("expected 2, got %q", got)
	}
	if got := cc.CodeFor("http://c"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if !cc.HasCoding("http://a", "1") {
		t.Error("expected HasCoding to match")
	}
	if cc.HasCoding("http://a", "2") {
		t.Error("expected HasCoding not to match a different code")
	}

	var nilCC *CodeableConcept
	if nilCC.CodeFor("http://a") != "" || nilCC.HasCoding("http://a", "1") {
		t.Error("nil concept should not match")
	}
}

func TestMeta_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Resource{ResourceType: "ExplanationOfBenefit", ID: "x", Meta: &Meta{}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"resourceType":"ExplanationOfBenefit","id":"x","meta":{}}` {
		t.Errorf("unexpected encoding %s", data)
	}
}
