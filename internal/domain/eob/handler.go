package eob

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bluebutton/bluebutton/internal/platform/auth"
	"github.com/bluebutton/bluebutton/internal/platform/fhir"
	"github.com/bluebutton/bluebutton/pkg/pagination"
)

const resourceType = "ExplanationOfBenefit"

// Search parameter names.
const (
	PatientParam       = "patient"
	ExcludeSAMHSAParam = "excludeSAMHSA"
)

type Handler struct {
	svc     *Service
	baseURL string
}

// NewHandler returns a handler that builds absolute links from baseURL,
// the FHIR base such as "https://host/v1/fhir". When baseURL is empty the
// request's own scheme and host are used.
func NewHandler(svc *Service, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: strings.TrimRight(baseURL, "/")}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	g := fhirGroup.Group("/"+resourceType, auth.RequireScope(resourceType, "read"))
	g.GET("", h.SearchEOBsFHIR)
	g.POST("/_search", h.SearchEOBsFHIR)
	g.GET("/:id", h.GetEOBFHIR)
	g.GET("/:id/_history/:vid", h.VReadEOBFHIR)
}

// Capability describes the interactions RegisterRoutes serves.
func Capability() fhir.CSResource {
	return fhir.ReadSearchCapability(resourceType, []fhir.CSSearchParam{
		{Name: PatientParam, Type: "reference", Documentation: "The beneficiary whose claims are returned"},
		{Name: pagination.CountParam, Type: "number", Documentation: "Page size, supplied together with startIndex"},
		{Name: pagination.StartIndexParam, Type: "number", Documentation: "Zero-based offset of the page"},
		{Name: ExcludeSAMHSAParam, Type: "token", Documentation: "When true, substance abuse treatment claims are withheld"},
	})
}

func (h *Handler) GetEOBFHIR(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("resource id is required"))
	}

	ctx := c.Request().Context()
	e, err := h.svc.Read(ctx, id)
	if err != nil {
		return h.errorResponse(c, err, id)
	}
	if p := auth.PatientFromContext(ctx); p != "" && e.Patient.Reference != fhir.FormatReference("Patient", p) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(resourceType, id))
	}
	return c.JSON(http.StatusOK, e)
}

// VReadEOBFHIR answers every versioned read with not-found: only the
// current state of a claim is served.
func (h *Handler) VReadEOBFHIR(c echo.Context) error {
	return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome(
		fhir.IssueSeverityError, fhir.IssueTypeNotFound,
		resourceType+"/"+c.Param("id")+"/_history/"+c.Param("vid")+" not found: versioned reads are not supported",
	))
}

func (h *Handler) SearchEOBsFHIR(c echo.Context) error {
	params, err := searchValues(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	patient := patientID(params.Get(PatientParam))
	if patient == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("search parameter patient is required"))
	}

	ctx := c.Request().Context()
	if p := auth.PatientFromContext(ctx); p != "" && p != patient {
		return c.JSON(http.StatusForbidden, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeForbidden,
			"token is not authorized for Patient/"+patient,
		))
	}

	pg, err := pagination.Parse(params)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	excludeSAMHSA := strings.EqualFold(params.Get(ExcludeSAMHSAParam), "true")

	eobs, err := h.svc.Search(ctx, patient, excludeSAMHSA)
	if err != nil {
		return h.errorResponse(c, err, "")
	}

	page, err := pagination.Page(eobs, pg)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	base := h.base(c)
	searchURL := base + "/" + resourceType
	extra := url.Values{PatientParam: {patient}}
	if excludeSAMHSA {
		extra.Set(ExcludeSAMHSAParam, "true")
	}

	links := []fhir.BundleLink{{Relation: "self", URL: pg.URL(searchURL, extra)}}
	for _, l := range pg.FHIRLinks(searchURL, len(eobs), extra) {
		links = append(links, fhir.BundleLink{Relation: l.Relation, URL: l.URL})
	}

	resources := make([]interface{}, len(page))
	for i, e := range page {
		resources[i] = e
	}
	bundle, err := fhir.NewSearchBundle(resources, len(eobs), base, links)
	if err != nil {
		return h.errorResponse(c, err, "")
	}
	return c.JSON(http.StatusOK, bundle)
}

// searchValues returns the query string for GET and the merged query and
// form body for POST.
func searchValues(c echo.Context) (url.Values, error) {
	if c.Request().Method == http.MethodPost {
		return c.FormParams()
	}
	return c.QueryParams(), nil
}

// patientID accepts both "123" and "Patient/123".
func patientID(v string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "Patient/"))
}

func (h *Handler) base(c echo.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return c.Scheme() + "://" + c.Request().Host + "/fhir"
}

func (h *Handler) errorResponse(c echo.Context, err error, id string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(resourceType, id))
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPagingArguments):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeTimeout, "claim lookup exceeded the allowed time limit",
		))
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).
		Str("path", c.Request().URL.Path).
		Msg("explanation of benefit request failed")
	return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("internal server error"))
}
