package eob

import "testing"

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func row(claimID string, line int, hcpcs string) claimRow {
	r := claimRow{rec: ClaimRecord{ClaimID: claimID, BeneficiaryID: "567834"}}
	if line > 0 {
		r.lineNumber = intPtr(line)
		r.hcpcs = strPtr(hcpcs)
		r.lineAmount = floatPtr(float64(line))
	}
	return r
}

func TestClaimAssembler_FoldsJoinRows(t *testing.T) {
	a := newClaimAssembler()
	a.add(row("2", 1, "A"))
	a.add(row("2", 2, "B"))
	a.add(row("1", 1, "C"))
	a.add(row("3", 0, ""))

	recs := a.records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(recs))
	}
	if recs[0].ClaimID != "2" || recs[1].ClaimID != "1" || recs[2].ClaimID != "3" {
		t.Errorf("expected first-seen order 2, 1, 3, got %s, %s, %s", recs[0].ClaimID, recs[1].ClaimID, recs[2].ClaimID)
	}
	if len(recs[0].Lines) != 2 || *recs[0].Lines[1].HCPCSCode != "B" || recs[0].Lines[1].PaymentAmount != 2 {
		t.Errorf("unexpected lines for claim 2: %+v", recs[0].Lines)
	}
	if len(recs[2].Lines) != 0 {
		t.Errorf("expected claim without lines to have none, got %+v", recs[2].Lines)
	}
}

func TestClaimAssembler_DropsRepeatedRows(t *testing.T) {
	a := newClaimAssembler()
	for i := 0; i < 3; i++ {
		a.add(row("7", 1, "A"))
		a.add(row("7", 2, "B"))
	}

	recs := a.records()
	if len(recs) != 1 {
		t.Fatalf("expected the claim exactly once, got %d", len(recs))
	}
	if len(recs[0].Lines) != 2 {
		t.Errorf("expected 2 distinct lines, got %d", len(recs[0].Lines))
	}
}

func TestClaimAssembler_Empty(t *testing.T) {
	if recs := newClaimAssembler().records(); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}
