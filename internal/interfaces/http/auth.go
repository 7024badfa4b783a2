package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

const actorKey = "actor"

// AnonymousActor is attributed to unauthenticated requests
var AnonymousActor = entity.AnonymousActor

// Claims are the bearer token claims. The subject is the actor id.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	Secret         string
	Issuer         string
	AllowAnonymous bool
}

// Authenticator verifies HS256 bearer tokens and resolves the acting principal
type Authenticator struct {
	secret         []byte
	issuer         string
	allowAnonymous bool
	now            func() time.Time
}

// NewAuthenticator creates an authenticator. An empty secret rejects every token.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{
		secret:         []byte(cfg.Secret),
		issuer:         cfg.Issuer,
		allowAnonymous: cfg.AllowAnonymous,
		now:            time.Now,
	}
}

// Issue signs a token for actor valid for ttl
func (a *Authenticator) Issue(actor entity.Actor, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth: signing secret is not configured")
	}
	now := a.now()
	claims := Claims{
		Name:    actor.Name,
		Contact: actor.Contact,
		Role:    actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns its actor
func (a *Authenticator) Parse(token string) (entity.Actor, error) {
	if len(a.secret) == 0 {
		return entity.Actor{}, errors.New("auth: signing secret is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return entity.Actor{}, err
	}
	if claims.Subject == "" {
		return entity.Actor{}, errors.New("auth: token has no subject")
	}

	return entity.Actor{
		ID:      claims.Subject,
		Name:    claims.Name,
		Contact: claims.Contact,
		Role:    claims.Role,
	}, nil
}

// Middleware resolves the actor of each request
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if !a.allowAnonymous {
				abortUnauthorized(c, "missing bearer token")
				return
			}
			c.Set(actorKey, AnonymousActor)
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortUnauthorized(c, "authorization header must use the Bearer scheme")
			return
		}
		actor, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   msg,
		Code:    "UNAUTHENTICATED",
	})
}

// actorFrom returns the actor resolved by the middleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(entity.Actor); ok {
			return a
		}
	}
	return AnonymousActor
}

func isAnonymous(a entity.Actor) bool {
	return a == AnonymousActor
}
