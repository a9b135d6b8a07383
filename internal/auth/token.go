package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"CommuneChat/server/internal/models"
)

// Token kinds carried in the "type" claim. KindAny skips the kind check and
// is used at the websocket handshake, where either token is accepted.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindAny     = ""
)

const (
	accessTokenTTL  = 10 * time.Minute
	refreshTokenTTL = time.Hour
)

var (
	ErrMissingToken = errors.New("token not found in Authorization header")
	ErrInvalidToken = errors.New("token is invalid or expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrWrongKind    = errors.New("token is not of the expected kind")
)

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c *Claims) UserID() int {
	var id int
	fmt.Sscanf(c.Subject, "%d", &id)
	return id
}

func jwtSecret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("jwt-secret")
}

// SignToken mints an access or refresh token for the user.
func SignToken(user *models.User, kind string) (string, error) {
	ttl := accessTokenTTL
	if kind == KindRefresh {
		ttl = refreshTokenTTL
	}

	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

// VerifyToken validates the signature, expiry, revocation status, and, when
// expectedKind is not KindAny, the token kind. A single function replaces
// per-kind guard types: the kind is just a tag in the claims.
func VerifyToken(tokenStr, expectedKind string) (*Claims, error) {
	if Blacklist.IsBlacklisted(tokenStr) {
		return nil, ErrRevokedToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if expectedKind != KindAny && claims.Kind != expectedKind {
		return nil, ErrWrongKind
	}

	return claims, nil
}

// ExtractBearerToken pulls the raw token out of an Authorization header
// value. The scheme tag must match exactly; anything else counts as absent.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}

// TokenFromRequest resolves the bearer credential for a websocket handshake:
// the Authorization header is preferred, with a token query parameter as a
// fallback for browser clients that cannot set headers on ws upgrades.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return ExtractBearerToken(header)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
