package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bluebutton/bluebutton/internal/platform/auth"
)

// AccessEntry records one request for beneficiary data.
type AccessEntry struct {
	Timestamp    time.Time
	RequestID    string
	UserID       string
	Scopes       []string
	ResourceType string
	ResourceID   string
	PatientID    string
	Action       string // read, vread, search
	Method       string
	Path         string
	IPAddress    string
	StatusCode   int
}

// AccessRecorder persists access entries somewhere other than the log.
type AccessRecorder interface {
	RecordAccess(entry AccessEntry) error
}

// AccessRecorderFunc is a function adapter for AccessRecorder.
type AccessRecorderFunc func(entry AccessEntry) error

func (f AccessRecorderFunc) RecordAccess(entry AccessEntry) error {
	return f(entry)
}

// Audit logs every request under /fhir/ that touches a resource, after the
// handler has run, as a "phi_access" event. Entries are also handed to the
// recorder when one is given.
func Audit(logger zerolog.Logger, recorder AccessRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resourceType := extractResourceType(req.URL.Path)
			if resourceType == "" || resourceType == "metadata" {
				return next(c)
			}

			err := next(c)

			entry := AccessEntry{
				Timestamp:    time.Now().UTC(),
				ResourceType: resourceType,
				ResourceID:   c.Param("id"),
				Action:       auditAction(c),
				Method:       req.Method,
				Path:         req.URL.Path,
				IPAddress:    c.RealIP(),
				StatusCode:   c.Response().Status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.Scopes = auth.ScopesFromContext(ctx)
			entry.PatientID = auth.PatientFromContext(ctx)
			if entry.PatientID == "" {
				entry.PatientID = strings.TrimPrefix(patientParam(c), "Patient/")
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record access entry")
				}
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("scopes", entry.Scopes).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// patientParam reads the patient search parameter, which a POST _search
// carries in its form body.
func patientParam(c echo.Context) string {
	if c.Request().Method == http.MethodPost {
		return c.FormValue("patient")
	}
	return c.QueryParam("patient")
}

func auditAction(c echo.Context) string {
	switch {
	case c.Param("vid") != "":
		return "vread"
	case c.Param("id") != "":
		return "read"
	default:
		return "search"
	}
}

// extractResourceType returns the first segment after /fhir/, or "" for
// paths outside the FHIR base.
//
//   - /fhir/ExplanationOfBenefit          -> ExplanationOfBenefit
//   - /fhir/ExplanationOfBenefit/carrier-1 -> ExplanationOfBenefit
func extractResourceType(path string) string {
	rest, ok := strings.CutPrefix(path, "/fhir/")
	if !ok {
		return ""
	}
	seg, _, _ := strings.Cut(rest, "/")
	return seg
}
