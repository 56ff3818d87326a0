package middleware

import "github.com/labstack/echo/v4"

// Subject returns the authenticated subject, or "anon" when the request
// carried no token.
func Subject(c echo.Context) string {
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Role returns the role stored by JWTAuth, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(CtxRole).(string)
	return r
}
