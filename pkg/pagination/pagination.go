package pagination

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Query parameter names understood by Parse.
const (
	CountParam      = "_count"
	StartIndexParam = "startIndex"
)

var (
	// ErrInvalidRequest marks an individually invalid paging value, such as
	// a non-numeric or zero _count or an out of range startIndex.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidPagingArguments marks a request carrying only one of
	// _count and startIndex.
	ErrInvalidPagingArguments = errors.New("invalid paging arguments")
)

// Params holds pagination parameters extracted from a request. When
// Requested is false the whole result set is returned as a single page.
type Params struct {
	Limit     int
	Offset    int
	Requested bool
}

// Parse reads _count and startIndex. Both must be present or both absent.
func Parse(values url.Values) (Params, error) {
	hasCount := values.Has(CountParam)
	hasStart := values.Has(StartIndexParam)

	switch {
	case !hasCount && !hasStart:
		return Params{}, nil
	case hasCount != hasStart:
		return Params{}, fmt.Errorf("%w: %s and %s must be supplied together",
			ErrInvalidPagingArguments, CountParam, StartIndexParam)
	}

	limit, err := strconv.Atoi(values.Get(CountParam))
	if err != nil {
		return Params{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, CountParam)
	}
	if limit <= 0 {
		return Params{}, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidRequest, CountParam)
	}

	offset, err := strconv.Atoi(values.Get(StartIndexParam))
	if err != nil {
		return Params{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, StartIndexParam)
	}
	if offset < 0 {
		return Params{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidRequest, StartIndexParam)
	}

	return Params{Limit: limit, Offset: offset, Requested: true}, nil
}

// Page returns the window of items selected by p. An offset past the end of
// items is an error: it means the client followed a link into a result set
// that has since shrunk.
func Page[T any](items []T, p Params) ([]T, error) {
	if !p.Requested {
		return items, nil
	}
	if p.Offset < 0 || p.Offset > len(items) {
		return nil, fmt.Errorf("%w: %s %d is outside the result set of %d",
			ErrInvalidRequest, StartIndexParam, p.Offset, len(items))
	}
	n := min(p.Limit, len(items)-p.Offset)
	return items[p.Offset : p.Offset+n], nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Requested && p.Limit < total-p.Offset
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Requested && p.Offset > 0
}

// NextOffset returns the offset for the next page, saturating at
// math.MaxInt rather than wrapping.
func (p Params) NextOffset() int {
	if p.Limit > math.MaxInt-p.Offset {
		return math.MaxInt
	}
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// LastOffset returns the offset of the final page: the largest multiple of
// Limit strictly below total. This intentionally differs from
// (total/Limit-1)*Limit, which points one page short when total is not a
// multiple of Limit.
func (p Params) LastOffset(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return ((total - 1) / p.Limit) * p.Limit
}

// FHIRLinks generates the next, last and previous Bundle links for a paged
// search. searchURL is the absolute resource search URL (for example
// "https://host/fhir/ExplanationOfBenefit"); extra carries the search
// criteria every link must repeat, encoded after _count and startIndex.
func (p Params) FHIRLinks(searchURL string, total int, extra url.Values) []FHIRLink {
	var links []FHIRLink

	if p.HasNext(total) {
		links = append(links,
			FHIRLink{Relation: "next", URL: p.linkURL(searchURL, p.NextOffset(), extra)},
			FHIRLink{Relation: "last", URL: p.linkURL(searchURL, p.LastOffset(total), extra)},
		)
	}

	if p.HasPrevious() {
		links = append(links, FHIRLink{
			Relation: "previous",
			URL:      p.linkURL(searchURL, p.PreviousOffset(), extra),
		})
	}

	return links
}

// URL returns the link to the current page, or to the whole result set when
// no paging was requested.
func (p Params) URL(searchURL string, extra url.Values) string {
	if p.Requested {
		return p.linkURL(searchURL, p.Offset, extra)
	}
	if len(extra) == 0 {
		return searchURL
	}
	return searchURL + "?" + extra.Encode()
}

func (p Params) linkURL(searchURL string, offset int, extra url.Values) string {
	u := fmt.Sprintf("%s?%s=%d&%s=%d", searchURL, CountParam, p.Limit, StartIndexParam, offset)
	if len(extra) > 0 {
		u += "&" + extra.Encode()
	}
	return u
}

// FHIRLink represents a single FHIR Bundle link entry.
type FHIRLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}
