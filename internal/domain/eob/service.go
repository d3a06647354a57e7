package eob

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Query names reported to the QueryObserver.
const (
	QueryByID          = "eob_by_id"
	QueryByBeneficiary = "eobs_by_patient"
)

// QueryObserver receives the duration of every claim lookup and the size of
// every merged search result.
type QueryObserver interface {
	ObserveClaimQuery(query, claimType string, d time.Duration)
	ObserveSearchResults(n int)
}

// Service reads ExplanationOfBenefit resources and assembles a
// beneficiary's resources across every claim type.
type Service struct {
	finder      ClaimFinder
	filter      SensitivityFilter
	observer    QueryObserver
	fanoutLimit int
}

func NewService(finder ClaimFinder, filter SensitivityFilter) *Service {
	return &Service{finder: finder, filter: filter}
}

// SetObserver attaches an optional QueryObserver to the service.
func (s *Service) SetObserver(o QueryObserver) {
	s.observer = o
}

// SetFanoutLimit caps how many claim types a search queries at once.
// Zero or less queries them all concurrently; 1 queries them in turn.
// A search made inside a transaction attached with db.WithTx must use 1,
// since a transaction runs one query at a time.
func (s *Service) SetFanoutLimit(n int) {
	s.fanoutLimit = n
}

func (s *Service) observe(query string, ct *ClaimType, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveClaimQuery(query, ct.Tag, time.Since(start))
	}
}

// Read returns the resource named by id. Every id that does not lead to a
// stored claim yields an error matching ErrNotFound; ids that could not be
// parsed additionally match ErrMalformedIdentifier or ErrUnknownClaimType.
func (s *Service) Read(ctx context.Context, id string) (*ExplanationOfBenefit, error) {
	eobID, err := ParseEOBID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	ct := eobID.ClaimType

	start := time.Now()
	rec, err := s.finder.FindByID(ctx, ct, eobID.ClaimID)
	s.observe(QueryByID, ct, start)
	if err != nil {
		return nil, err
	}

	e, err := ct.Transform(ct, rec)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", eobID, err)
	}
	return e, nil
}

// Search returns every resource owned by the beneficiary, one query per
// claim type. Sensitive resources are dropped when excludeSAMHSA is set.
// The result is sorted by claim id, then claim type, so that pages cut from
// it are the same on every server. A failure for any claim type fails the
// whole search.
func (s *Service) Search(ctx context.Context, beneficiaryID string, excludeSAMHSA bool) ([]*ExplanationOfBenefit, error) {
	if beneficiaryID == "" {
		return nil, fmt.Errorf("%w: patient is required", ErrInvalidRequest)
	}

	kinds := ClaimTypes()
	perKind := make([][]*ExplanationOfBenefit, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	if s.fanoutLimit > 0 {
		g.SetLimit(s.fanoutLimit)
	}
	for i, ct := range kinds {
		g.Go(func() error {
			found, err := s.searchClaimType(gctx, ct, beneficiaryID)
			if err != nil {
				return err
			}
			perKind[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]*ExplanationOfBenefit, 0)
	for _, found := range perKind {
		for _, e := range found {
			if excludeSAMHSA && s.filter != nil && s.filter.Matches(e) {
				continue
			}
			merged = append(merged, e)
		}
	}
	SortEOBs(merged)
	if s.observer != nil {
		s.observer.ObserveSearchResults(len(merged))
	}
	return merged, nil
}

func (s *Service) searchClaimType(ctx context.Context, ct *ClaimType, beneficiaryID string) ([]*ExplanationOfBenefit, error) {
	start := time.Now()
	recs, err := s.finder.FindByBeneficiary(ctx, ct, beneficiaryID)
	s.observe(QueryByBeneficiary, ct, start)
	if err != nil {
		return nil, fmt.Errorf("search %s claims: %w", ct.Tag, err)
	}

	out := make([]*ExplanationOfBenefit, 0, len(recs))
	for _, rec := range recs {
		e, err := ct.Transform(ct, rec)
		if err != nil {
			return nil, fmt.Errorf("transform %s claim: %w", ct.Tag, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// SortEOBs orders resources by claim id, then claim type.
func SortEOBs(eobs []*ExplanationOfBenefit) {
	sort.SliceStable(eobs, func(i, j int) bool {
		a, b := eobs[i], eobs[j]
		if ai, bi := a.ClaimID(), b.ClaimID(); ai != bi {
			return ai < bi
		}
		return a.ClaimType() < b.ClaimType()
	})
}
