package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/user"
)

// gateMiddleware is the edge gate: it screens every page navigation before
// routing, using only the session cookie and the claims signed into it.
// It never reads the session storage; the token's role claim is enough to
// place a navigation, and stale tokens are caught by the authed API
// endpoints behind the page.
//
// API paths pass through untouched except for one courtesy: a browser
// call carrying only the cookie gets it promoted to the Authorization
// header so the JWT middleware sees a single token source.
func (s *server) gateMiddleware() echo.MiddlewareFunc {
	conf := s.deps.Conf
	table := s.deps.Policy

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			path := req.URL.Path

			if isStaticAsset(path) {
				return next(ctx)
			}

			cookie, err := ctx.Cookie(conf.Session.CookieName)
			hasCookie := err == nil && cookie.Value != ""

			if strings.HasPrefix(path, "/v1") {
				if hasCookie && req.Header.Get(echo.HeaderAuthorization) == "" {
					req.Header.Set(echo.HeaderAuthorization, "Bearer "+cookie.Value)
				}
				return next(ctx)
			}

			if !hasCookie {
				if table.IsPublic(path) {
					return next(ctx)
				}
				return redirectToLogin(ctx, table, path)
			}

			claims, err := ParseToken(conf, cookie.Value)
			if err != nil {
				// expired or tampered cookie; drop it and start over
				ctx.SetCookie(expiredSessionCookie(conf))
				if table.IsPublic(path) {
					return next(ctx)
				}
				return redirectToLogin(ctx, table, path)
			}
			ident := claims.Identity()

			// already logged in; login/register pages bounce to the role's home
			if table.IsAuthEntry(path) {
				return ctx.Redirect(http.StatusSeeOther, table.LandingPath(ident.Role))
			}

			switch policy.Decide(table.RequiredRoles(path), &ident, true) {
			case policy.Allow:
				return next(ctx)
			default:
				// wrong role for this area; send them to their own landing
				return ctx.Redirect(http.StatusSeeOther, table.LandingPath(ident.Role))
			}
		}
	}
}

func redirectToLogin(ctx echo.Context, table *policy.Table, next string) error {
	loc := table.LoginPath()
	if next != "" && next != "/" {
		loc += "?next=" + url.QueryEscape(next)
	}
	return ctx.Redirect(http.StatusSeeOther, loc)
}

func isStaticAsset(path string) bool {
	if strings.HasPrefix(path, "/assets/") || strings.HasPrefix(path, "/static/") {
		return true
	}
	switch path {
	case "/favicon.ico", "/robots.txt":
		return true
	}
	return false
}

// identity builds a claims-backed identity pointer for guard decisions, or
// nil for anonymous callers.
func claimsIdentity(ctx echo.Context) *user.Identity {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil
	}
	ident := claims.Identity()
	return &ident
}
