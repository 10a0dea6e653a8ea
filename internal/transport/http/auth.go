package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"live-quiz-service/internal/domain"
)

const identityKey = "identity"

// Claims carried by bearer tokens. The subject is the user ID.
type Claims struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// IdentityProvider verifies HS256 bearer tokens and turns them into caller identities.
type IdentityProvider struct {
	secret []byte
	now    func() time.Time
}

func NewIdentityProvider(secret string) *IdentityProvider {
	return &IdentityProvider{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for id. Used by the dev token command and tests.
func (p *IdentityProvider) IssueToken(id domain.Identity, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Name:    id.Name,
		Picture: id.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Verify parses a token string and returns the identity it carries.
func (p *IdentityProvider) Verify(tokenString string) (domain.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return domain.Identity{}, domain.ErrMissingIdentity
	}
	return domain.Identity{UserID: claims.Subject, Name: claims.Name, Image: claims.Picture}, nil
}

// RequireIdentity rejects requests without a valid token. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func (p *IdentityProvider) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid authorization header format", Code: "unauthorized"})
				return
			}
			raw = parts[1]
		}
		if raw == "" {
			writeError(c, domain.ErrMissingIdentity)
			return
		}

		identity, err := p.Verify(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}
