package eob

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluebutton/bluebutton/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type claimFinderPG struct{ pool *pgxpool.Pool }

func NewClaimFinderPG(pool *pgxpool.Pool) ClaimFinder { return &claimFinderPG{pool: pool} }

func (r *claimFinderPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *claimFinderPG) FindByID(ctx context.Context, ct *ClaimType, claimID string) (*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, ct.byIDSQL, claimID)
	if err != nil {
		return nil, fmt.Errorf("query %s claim: %w", ct.Tag, err)
	}
	recs, err := collectClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("read %s claim: %w", ct.Tag, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, BuildEOBID(ct, claimID))
	}
	return recs[0], nil
}

func (r *claimFinderPG) FindByBeneficiary(ctx context.Context, ct *ClaimType, beneficiaryID string) ([]*ClaimRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, ct.byBeneficiary, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("query %s claims: %w", ct.Tag, err)
	}
	recs, err := collectClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("read %s claims: %w", ct.Tag, err)
	}
	return recs, nil
}

// claimRow is one row of the header/line join.
type claimRow struct {
	rec        ClaimRecord
	lineNumber *int
	hcpcs      *string
	revenue    *string
	lineAmount *float64
}

func (r *claimRow) dest() []interface{} {
	return []interface{}{
		&r.rec.ClaimID, &r.rec.BeneficiaryID, &r.rec.ClaimGroupID, &r.rec.NCHClaimTypeCode,
		&r.rec.DateFrom, &r.rec.DateThrough, &r.rec.PaymentAmount, &r.rec.ProviderNumber,
		&r.rec.ProductCode, &r.rec.DRGCode, &r.rec.DiagnosisVersion, &r.rec.DiagnosisCodes,
		&r.lineNumber, &r.hcpcs, &r.revenue, &r.lineAmount,
	}
}

func collectClaims(rows pgx.Rows) ([]*ClaimRecord, error) {
	defer rows.Close()
	a := newClaimAssembler()
	for rows.Next() {
		var row claimRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		a.add(row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return a.records(), nil
}

// claimAssembler folds joined rows back into one record per claim,
// keeping first-seen order and dropping repeated lines.
type claimAssembler struct {
	byID  map[string]*ClaimRecord
	order []*ClaimRecord
	lines map[string]map[int]bool
}

func newClaimAssembler() *claimAssembler {
	return &claimAssembler{
		byID:  make(map[string]*ClaimRecord),
		lines: make(map[string]map[int]bool),
	}
}

func (a *claimAssembler) add(row claimRow) {
	rec, ok := a.byID[row.rec.ClaimID]
	if !ok {
		header := row.rec
		header.Lines = nil
		rec = &header
		a.byID[rec.ClaimID] = rec
		a.lines[rec.ClaimID] = make(map[int]bool)
		a.order = append(a.order, rec)
	}
	if row.lineNumber == nil {
		return
	}
	seen := a.lines[rec.ClaimID]
	if seen[*row.lineNumber] {
		return
	}
	seen[*row.lineNumber] = true

	line := ClaimLine{
		Number:        *row.lineNumber,
		HCPCSCode:     row.hcpcs,
		RevenueCenter: row.revenue,
	}
	if row.lineAmount != nil {
		line.PaymentAmount = *row.lineAmount
	}
	rec.Lines = append(rec.Lines, line)
}

func (a *claimAssembler) records() []*ClaimRecord {
	return a.order
}
