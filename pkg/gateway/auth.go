package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	TenantHeader = "X-Tenant-ID"
	tenantKey    = "tenant_id"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoTenant     = errors.New("tenant could not be resolved")
)

type AuthConfig struct {
	// JWTSecret turns on bearer-token auth (HS256).
	JWTSecret     string `mapstructure:"jwt_secret"`
	DefaultTenant string `mapstructure:"default_tenant"`
}

// Authenticator resolves the tenant of a request: the token's id or sub claim
// when a secret is configured, otherwise the tenant header, otherwise the default.
type Authenticator struct {
	secret        []byte
	defaultTenant string
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), defaultTenant: strings.TrimSpace(cfg.DefaultTenant)}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Issue signs a token for tenant. Used by the CLI and tests.
func (a *Authenticator) Issue(tenant string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth disabled")
	}
	now := time.Now()
	claims := jwt.MapClaims{"id": tenant, "sub": tenant, "iat": now.Unix()}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// TenantFromToken validates token and returns its tenant claim.
func (a *Authenticator) TenantFromToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	for _, key := range []string{"id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return "", ErrInvalidToken
}

// Resolve returns the tenant for a request, given the raw bearer token if any.
func (a *Authenticator) Resolve(token, header string) (string, error) {
	if a.Enabled() {
		return a.TenantFromToken(token)
	}
	if h := strings.TrimSpace(header); h != "" {
		return h, nil
	}
	if a.defaultTenant != "" {
		return a.defaultTenant, nil
	}
	return "", ErrNoTenant
}

func bearer(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware rejects requests whose tenant cannot be resolved.
func (a *Authenticator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenant, err := a.Resolve(bearer(c.Request()), c.Request().Header.Get(TenantHeader))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		}
		c.Set(tenantKey, tenant)
		return next(c)
	}
}

// Tenant returns the tenant resolved by Middleware.
func Tenant(c echo.Context) string {
	v, _ := c.Get(tenantKey).(string)
	return v
}
