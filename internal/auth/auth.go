// Package auth resolves the caller's actor from the Authorization header.
//
// Two bearer token kinds are accepted:
//   - Static tokens from the configuration, each mapped to a fixed actor. The
//     secret may be stored in clear or as a bcrypt hash.
//   - HS256 signed JWTs when a secret is configured. The "sub" claim becomes
//     the actor's "id"; an optional "actor" object claim is merged in.
//
// Requests without an Authorization header are anonymous.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/maruel/insertd/internal/capability"
)

var (
	errInvalidAuthHdr = errors.New("invalid authorization header")
	// ErrInvalidToken is returned for bearer tokens that match nothing.
	ErrInvalidToken = errors.New("invalid token")
)

// Token maps a static bearer token to an actor.
//
// Exactly one of Token and Hash is set. Hash is a bcrypt hash of the token.
type Token struct {
	Token string         `json:"token,omitempty" yaml:"token,omitempty"`
	Hash  string         `json:"hash,omitempty" yaml:"hash,omitempty"`
	Actor map[string]any `json:"actor" yaml:"actor"`
}

// Validate checks the token entry.
func (t *Token) Validate() error {
	if (t.Token == "") == (t.Hash == "") {
		return errors.New("exactly one of token and hash must be set")
	}
	if t.Hash != "" {
		if _, err := bcrypt.Cost([]byte(t.Hash)); err != nil {
			return fmt.Errorf("hash: %w", err)
		}
	}
	if len(t.Actor) == 0 {
		return errors.New("actor is required")
	}
	return nil
}

// Authenticator maps bearer tokens to actors. Its keys can be replaced while
// requests are in flight.
type Authenticator struct {
	keys atomic.Pointer[keyring]
}

type keyring struct {
	tokens    []Token
	jwtSecret []byte
}

// New returns an Authenticator. An empty jwtSecret disables JWTs.
func New(tokens []Token, jwtSecret string) *Authenticator {
	a := &Authenticator{}
	a.Swap(tokens, jwtSecret)
	return a
}

// Swap replaces the accepted tokens and JWT secret.
func (a *Authenticator) Swap(tokens []Token, jwtSecret string) {
	k := &keyring{tokens: slices.Clone(tokens)}
	if jwtSecret != "" {
		k.jwtSecret = []byte(jwtSecret)
	}
	a.keys.Store(k)
}

// Actor returns the actor for r, or nil for an anonymous request.
func (a *Authenticator) Actor(r *http.Request) (capability.Actor, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, errInvalidAuthHdr
	}
	return a.Resolve(token)
}

// Resolve returns the actor for a raw bearer token.
func (a *Authenticator) Resolve(token string) (capability.Actor, error) {
	k := a.keys.Load()
	for i := range k.tokens {
		if k.tokens[i].matches(token) {
			return maps.Clone(capability.Actor(k.tokens[i].Actor)), nil
		}
	}
	if k.jwtSecret != nil && strings.Count(token, ".") == 2 {
		return parseJWT(token, k.jwtSecret)
	}
	return nil, ErrInvalidToken
}

func (t *Token) matches(token string) bool {
	if t.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1
}

func parseJWT(tokenString string, secret []byte) (capability.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	actor := capability.Actor{}
	if extra, ok := claims["actor"].(map[string]any); ok {
		maps.Copy(actor, extra)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	if sub != "" {
		actor["id"] = sub
	}
	if len(actor) == 0 {
		return nil, ErrInvalidToken
	}
	return actor, nil
}
