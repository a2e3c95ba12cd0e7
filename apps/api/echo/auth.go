package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
)

const (
	contextTokenKey     = "token"
	contextPrincipalKey = "principal"
	tokenAudience       = "PrepCards"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are anonymous: Subject is an opaque identifier and Role is teacher or crp.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !core.IsValidRole(c.Role) {
		return core.ErrInvalidRole
	}
	return nil
}

func (c Claims) Principal() core.Principal {
	return core.Principal{Subject: c.Subject, Role: c.Role}
}

func NewClaims(conf *core.Config, subject, role string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role: role,
	}
}

// newJWTConfig returns the JWT auth middleware config.
func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string for a principal of the given role.
func GenerateToken(conf *core.Config, subject, role string) (string, error) {
	if !core.IsValidRole(role) {
		return "", core.ErrInvalidRole
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), NewClaims(conf, subject, role))
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextPrincipal(ctx echo.Context) (core.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(core.Principal); ok {
		return p, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Principal{}, err
	}
	p := claims.Principal()
	ctx.Set(contextPrincipalKey, p)
	return p, nil
}
