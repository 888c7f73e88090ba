package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/user"
)

const contextTokenKey = "userToken"

// newJWTConfig is the JWT auth middleware config for authed API endpoints.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
// The standard Id claim carries the session scope ID so token bearers and
// the session storage agree on which record they are talking about; Role
// rides along so the edge gate can authorize a navigation without a
// storage round-trip.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	Specialty    string    `json:"specialty,omitempty"`
}

// Identity rebuilds the authenticated profile carried by the claims.
func (c Claims) Identity() user.Identity {
	return user.Identity{
		ID:        c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		Specialty: c.Specialty,
	}
}

func GetIdentityClaims(conf *core.Config, ident user.Identity, sid string, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   ident.ID,
			Audience:  "Clinica",
			Id:        sid,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        ident.Email,
		Name:         ident.Name,
		Role:         ident.Role,
		Specialty:    ident.Specialty,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(conf.SecretKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

// ParseToken verifies a signed token string and returns its Claims.
func ParseToken(conf *core.Config, tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return conf.SecretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// requestToken extracts the raw token from the Authorization header, falling
// back to the session cookie. It does not verify the signature.
func requestToken(ctx echo.Context, conf *core.Config) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := ctx.Cookie(conf.Session.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func authenticate(ctx echo.Context, email, pwd string, verifier user.CredentialVerifier) (user.Identity, error) {
	ident, err := verifier.Verify(ctx.Request().Context(), email, pwd)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return user.Identity{}, errAuthenticationFailed
		case user.ErrAccountDeactivated:
			return user.Identity{}, errAccountDeactivated
		}
		return user.Identity{}, errors.Wrap(err, "verifying credentials")
	}
	return ident, nil
}

func newSessionCookie(conf *core.Config, token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     conf.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !conf.Debug,
	}
}

func expiredSessionCookie(conf *core.Config) *http.Cookie {
	return &http.Cookie{
		Name:     conf.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !conf.Debug,
	}
}

// Auth API

type (
	authDeps struct {
		conf     *core.Config
		verifier user.CredentialVerifier
		sessions *sessionRegistry
		table    *policy.Table
		validate *validator.Validate
	}

	authApi struct {
		authDeps
	}
)

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps authDeps) {
	api := authApi{authDeps: deps}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.GET("/session", api.session)
	ag.POST("/logout", api.logout)
	ag.GET("/routes", api.routes)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ident, err := authenticate(ctx, data.Email, data.Password, api.verifier)
	if err != nil {
		return err
	}

	// each login opens a fresh session scope
	sid := uuid.New().String()
	rec, err := api.sessions.Login(ctx.Request().Context(), sid, ident)
	if err != nil {
		return errors.Wrap(err, "saving session record")
	}

	token, err := GenerateToken(api.conf, GetIdentityClaims(api.conf, ident, sid))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	ctx.SetCookie(newSessionCookie(api.conf, token, rec.ExpiresAt))

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:      token,
		Identity:   ident,
		ExpiresAt:  rec.ExpiresAt,
		RedirectTo: api.table.LandingPath(ident.Role),
	})
}

// session reports the caller's session state. Unlike the authed endpoints it
// answers 200 for anonymous callers; "no session" is a state, not an error.
func (api *authApi) session(ctx echo.Context) error {
	anonymous := SessionResponse{Authenticated: false}

	tokenStr := requestToken(ctx, api.conf)
	if tokenStr == "" {
		return ctx.JSON(http.StatusOK, anonymous)
	}
	claims, err := ParseToken(api.conf, tokenStr)
	if err != nil {
		ctx.SetCookie(expiredSessionCookie(api.conf))
		return ctx.JSON(http.StatusOK, anonymous)
	}

	mgr, err := api.sessions.Get(ctx.Request().Context(), claims.Id)
	if err != nil {
		return errors.Wrap(err, "resolving session")
	}
	ident := mgr.Current()
	if ident == nil {
		// token outlived its session record
		ctx.SetCookie(expiredSessionCookie(api.conf))
		return ctx.JSON(http.StatusOK, anonymous)
	}

	return ctx.JSON(http.StatusOK, SessionResponse{
		Authenticated: true,
		Identity:      ident,
		RedirectTo:    api.table.LandingPath(ident.Role),
	})
}

// logout clears the session record and cookie. Idempotent: logging out
// without a session is not an error.
func (api *authApi) logout(ctx echo.Context) error {
	ctx.SetCookie(expiredSessionCookie(api.conf))

	tokenStr := requestToken(ctx, api.conf)
	if tokenStr == "" {
		return ctx.NoContent(http.StatusNoContent)
	}
	if claims, err := ParseToken(api.conf, tokenStr); err == nil {
		if err = api.sessions.Logout(ctx.Request().Context(), claims.Id); err != nil {
			return errors.Wrap(err, "clearing session record")
		}
	}
	return ctx.NoContent(http.StatusNoContent)
}

// routes exposes the route policy table so navigation clients render menus
// and redirects from the same source of truth the server enforces.
func (api *authApi) routes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, RoutesResponse{
		Public:  api.table.Public(),
		Rules:   api.table.Rules(),
		Landing: api.table.Landing(),
		Login:   api.table.LoginPath(),
	})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// the session record must still be live; a refresh never revives one
	mgr, err := api.sessions.Get(ctx.Request().Context(), claims.Id)
	if err != nil {
		return errors.Wrap(err, "resolving session")
	}
	ident := mgr.Current()
	if ident == nil {
		return errUnauthorized
	}

	// check if refresh window has not closed
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.conf.Server.JWTExpirationDelta + api.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return errRefreshExpired
	}

	token, err := GenerateToken(api.conf, GetIdentityClaims(api.conf, *ident, claims.Id, claims.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Identity: *ident})
}

// Bindings

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token      string        `json:"token"`
		Identity   user.Identity `json:"identity"`
		ExpiresAt  time.Time     `json:"expires_at,omitempty"`
		RedirectTo string        `json:"redirect_to,omitempty"`
	}

	SessionResponse struct {
		Authenticated bool           `json:"authenticated"`
		Identity      *user.Identity `json:"identity,omitempty"`
		RedirectTo    string         `json:"redirect_to,omitempty"`
	}

	RoutesResponse struct {
		Public  []string               `json:"public"`
		Rules   map[string][]user.Role `json:"rules"`
		Landing map[user.Role]string   `json:"landing"`
		Login   string                 `json:"login"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
