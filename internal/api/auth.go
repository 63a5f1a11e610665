package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// Editor roles carried in tokens.
const (
	RoleEditor       = "editor"
	RoleSeniorEditor = "senior_editor"
)

// ErrUnauthorized is returned for a missing or invalid bearer token.
var ErrUnauthorized = eris.New("api: unauthorized")

// Claims are the editor token claims. The subject is the editor's handle.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 editor tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(secret, issuer string) *Authenticator {
	if issuer == "" {
		issuer = "newsroom"
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for editor valid for ttl.
func (a *Authenticator) Issue(editor, role string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", eris.New("api: jwt secret not configured")
	}
	if editor == "" {
		return "", eris.New("api: editor is required")
	}
	if role == "" {
		role = RoleEditor
	}
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   editor,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	return s, eris.Wrap(err, "api: sign token")
}

// Verify parses and validates a bearer token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, eris.Wrap(ErrUnauthorized, "api: jwt secret not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(token, "Bearer "), claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, eris.Wrapf(ErrUnauthorized, "api: %v", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, eris.Wrap(ErrUnauthorized, "api: token has no subject")
	}
	return claims, nil
}

type ctxKey struct{}

// EditorFrom returns the authenticated editor's claims, if any.
func EditorFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// RequireEditor rejects requests without a valid editor token.
func (a *Authenticator) RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, eris.Wrap(ErrUnauthorized, "api: missing bearer token"))
			return
		}
		claims, err := a.Verify(h)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}
