package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireScope returns middleware that checks if the user has the required FHIR scope.
// Scopes follow SMART on FHIR format, optionally prefixed with a context
// ("ExplanationOfBenefit.read", "patient/ExplanationOfBenefit.read", "user/*.read").
func RequireScope(resource, operation string) echo.MiddlewareFunc {
	required := fmt.Sprintf("%s.%s", resource, operation)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, scope := range ScopesFromContext(c.Request().Context()) {
				if matchScope(scope, required) {
					return next(c)
				}
			}

			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required scope: %s", required))
		}
	}
}

// matchScope checks if a granted scope covers the required scope.
// "user/*.*" matches everything, "patient/*.read" matches any read.
func matchScope(granted, required string) bool {
	if granted == required {
		return true
	}

	gParts := strings.SplitN(granted, ".", 2)
	rParts := strings.SplitN(required, ".", 2)

	if len(gParts) != 2 || len(rParts) != 2 {
		return false
	}

	gRes, gOp := stripScopeContext(gParts[0]), gParts[1]
	rRes, rOp := rParts[0], rParts[1]

	resMatch := gRes == rRes || gRes == "*"
	opMatch := gOp == rOp || gOp == "*"

	return resMatch && opMatch
}

func stripScopeContext(res string) string {
	for _, prefix := range []string{"patient/", "user/", "system/"} {
		if strings.HasPrefix(res, prefix) {
			return strings.TrimPrefix(res, prefix)
		}
	}
	return res
}
