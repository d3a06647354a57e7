package middleware

import (
	"github.com/labstack/echo/v4"
)

// claimResponseHeaders are sent on every response. Claims data must never be
// cached, framed or leaked through a referrer.
var claimResponseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range claimResponseHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
