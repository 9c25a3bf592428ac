package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingHeader = errors.New("authorization header missing")
)

// Resolver resolves a bearer credential to an Identity. The credential is
// issued by the external identity provider; this layer only verifies it.
type Resolver interface {
	Resolve(token string) (*Identity, error)
}

// Claims is the JWT claim set issued by the identity provider.
type Claims struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HMAC-signed bearer tokens.
type JWTResolver struct {
	secretKey []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secretKey: []byte(secret)}
}

// Resolve validates the token and maps its claims to an Identity.
// Tokens carrying an unknown role resolve to viewer rather than failing;
// role vocabulary can grow on the provider side ahead of this service.
func (r *JWTResolver) Resolve(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return r.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := Role(claims.Role)
	if !role.Valid() {
		role = RoleViewer
	}

	return &Identity{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		Role:        role,
		AvatarURL:   claims.AvatarURL,
	}, nil
}

// FromRequest extracts a bearer token from the Authorization header or the
// access_token query parameter (browser WebSocket clients cannot set headers).
// Returns an empty string when no credential is presented.
func FromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
